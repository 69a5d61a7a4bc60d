package postgres

import (
	"context"

	"github.com/go-notify/internal/domain"
)

// EnabledDevices returns the push-enabled devices of the given users.
func (r *Repo) EnabledDevices(ctx context.Context, userIDs []string) ([]domain.Device, error) {
	var out []domain.Device
	if len(userIDs) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).
		Where("user_id IN ? AND enable = ?", userIDs, true).
		Find(&out).Error
	return out, err
}

// DisableDevice marks a device as no longer reachable, typically after the
// push provider reports its endpoint as disabled.
func (r *Repo) DisableDevice(ctx context.Context, deviceID string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("id = ?", deviceID).
		Update("enable", false).Error
}
