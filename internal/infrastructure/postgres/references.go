package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-notify/internal/domain"
	"github.com/go-notify/internal/pkg/id"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResolveAvatar returns the id of the avatar for (a.Kind, a.ReferenceID),
// inserting a when none exists. Display fields of an existing record are kept.
func (r *Repo) ResolveAvatar(ctx context.Context, a domain.Avatar) (string, error) {
	a.ID = id.New()
	return resolve(ctx, r.db, a.Kind, a.ReferenceID, &a, func(v *domain.Avatar) string { return v.ID })
}

// ResolveAttachment is ResolveAvatar for attachments.
func (r *Repo) ResolveAttachment(ctx context.Context, a domain.Attachment) (string, error) {
	a.ID = id.New()
	return resolve(ctx, r.db, a.Kind, a.ReferenceID, &a, func(v *domain.Attachment) string { return v.ID })
}

// resolve is select, insert-or-ignore, re-select. Concurrent resolvers of the
// same reference converge on whichever insert won.
func resolve[T any](ctx context.Context, db *gorm.DB, kind, refID string, fresh *T, idOf func(*T) string) (string, error) {
	find := func() (string, bool, error) {
		var got T
		err := db.WithContext(ctx).
			Where("type = ? AND reference_id = ?", kind, refID).
			Take(&got).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return idOf(&got), true, nil
	}

	if existing, ok, err := find(); err != nil || ok {
		return existing, err
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(fresh)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 1 {
		return idOf(fresh), nil
	}
	existing, ok, err := find()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s %s vanished after conflict: %w", kind, refID, domain.ErrConflict)
	}
	return existing, nil
}

// AvatarsByIDs returns the avatars with the given ids in unspecified order.
func (r *Repo) AvatarsByIDs(ctx context.Context, ids []string) ([]domain.Avatar, error) {
	var out []domain.Avatar
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// AttachmentsByIDs returns the attachments with the given ids in unspecified order.
func (r *Repo) AttachmentsByIDs(ctx context.Context, ids []string) ([]domain.Attachment, error) {
	var out []domain.Attachment
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}
