package postgres

import (
	"context"
	"fmt"

	"github.com/go-notify/internal/domain"
	"gorm.io/gorm"
)

// indexes AutoMigrate cannot express from struct tags.
var indexes = []string{
	// Dedup tuple. A null reference is treated as '' so unreferenced
	// notifications still collide on (type, unique_key).
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_notification_dedup
		ON notification (type, COALESCE(reference_id, ''), COALESCE(reference_type, ''), unique_key)`,
	`CREATE INDEX IF NOT EXISTS idx_user_notification_feed
		ON user_notification (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_preference_scope
		ON notification_preference (notification_type, type, reference_id)`,
}

// Bootstrap creates the tables and indexes if they don't already exist.
// Safe to call on every startup.
func Bootstrap(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).AutoMigrate(
		&domain.User{},
		&domain.Device{},
		&domain.Preference{},
		&domain.Avatar{},
		&domain.Attachment{},
		&domain.Notification{},
		&domain.UserNotification{},
		&domain.OutboxEvent{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range indexes {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
