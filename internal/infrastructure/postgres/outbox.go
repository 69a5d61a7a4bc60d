package postgres

import (
	"context"

	"github.com/go-notify/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnqueueEvent stores e for publication once the surrounding transaction commits.
func (r *Repo) EnqueueEvent(ctx context.Context, e domain.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(&e).Error
}

// DrainOutbox hands up to limit pending events, oldest first, to fn and deletes
// the ones fn accepted. Rows locked by a concurrent drain are skipped. It stops
// at the first fn error and returns it once the earlier deletions are committed.
func (r *Repo) DrainOutbox(ctx context.Context, limit int, fn func(context.Context, domain.OutboxEvent) error) (int, error) {
	var (
		done  []string
		fnErr error
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var events []domain.OutboxEvent
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Order("created_at, id").
			Limit(limit).
			Find(&events).Error
		if err != nil {
			return err
		}
		done = make([]string, 0, len(events))
		for _, e := range events {
			if fnErr = fn(ctx, e); fnErr != nil {
				break
			}
			done = append(done, e.ID)
		}
		if len(done) == 0 {
			return nil
		}
		return tx.Where("id IN ?", done).Delete(&domain.OutboxEvent{}).Error
	})
	if err != nil {
		return 0, err
	}
	return len(done), fnErr
}
