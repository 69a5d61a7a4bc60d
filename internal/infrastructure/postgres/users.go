package postgres

import (
	"context"

	"github.com/go-notify/internal/domain"
)

// UsersByIDs returns the users with the given ids. Unknown ids are skipped.
func (r *Repo) UsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	var out []domain.User
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}
