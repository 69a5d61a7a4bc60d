package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-notify/internal/domain"
	"github.com/go-notify/internal/pkg/stream"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const userNotificationBatch = 500

// InsertNotification inserts n unless a row with the same dedup tuple exists.
func (r *Repo) InsertNotification(ctx context.Context, n *domain.Notification) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(n)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// InsertUserNotifications bulk-inserts delivery rows. Rows that already exist
// for (notification, user) are left untouched.
func (r *Repo) InsertUserNotifications(ctx context.Context, rows []domain.UserNotification) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, userNotificationBatch).Error
}

func (r *Repo) GetNotification(ctx context.Context, notificationID string) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.WithContext(ctx).Where("id = ?", notificationID).Take(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Expand loads the avatars and attachments of n in their stored order.
func (r *Repo) Expand(ctx context.Context, n domain.Notification) (*domain.ExpandedNotification, error) {
	avatars, err := r.AvatarsByIDs(ctx, n.AvatarIDs)
	if err != nil {
		return nil, fmt.Errorf("load avatars: %w", err)
	}
	attachments, err := r.AttachmentsByIDs(ctx, n.AttachmentIDs)
	if err != nil {
		return nil, fmt.Errorf("load attachments: %w", err)
	}
	return &domain.ExpandedNotification{
		Notification: n,
		Avatars:      domain.OrderAvatars(n.AvatarIDs, avatars),
		Attachments:  domain.OrderAttachments(n.AttachmentIDs, attachments),
	}, nil
}

// StreamRecipients opens a forward-only cursor over the delivery rows of a
// notification. The caller must Close it; stream.Process does.
func (r *Repo) StreamRecipients(ctx context.Context, notificationID string) (stream.Cursor[domain.UserNotification], error) {
	db := r.db.WithContext(ctx)
	rows, err := db.Model(&domain.UserNotification{}).
		Where("notification_id = ?", notificationID).
		Order("user_id").
		Rows()
	if err != nil {
		return nil, fmt.Errorf("open recipients cursor: %w", err)
	}
	return &rowCursor[domain.UserNotification]{db: db, rows: rows}, nil
}

// rowCursor adapts *sql.Rows to stream.Cursor, scanning each row with gorm.
type rowCursor[T any] struct {
	db   *gorm.DB
	rows *sql.Rows
}

func (c *rowCursor[T]) Next() bool   { return c.rows.Next() }
func (c *rowCursor[T]) Err() error   { return c.rows.Err() }
func (c *rowCursor[T]) Close() error { return c.rows.Close() }

func (c *rowCursor[T]) Value() (T, error) {
	var v T
	err := c.db.ScanRows(c.rows, &v)
	return v, err
}
