package postgres

import (
	"context"

	"github.com/go-notify/internal/domain"
)

// GlobalFlags returns the global notification settings of each user that has any.
func (r *Repo) GlobalFlags(ctx context.Context, userIDs []string) (map[string]domain.NotificationFlags, error) {
	out := make(map[string]domain.NotificationFlags, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var users []domain.User
	err := r.db.WithContext(ctx).
		Select("id", "notification_flags").
		Where("id IN ?", userIDs).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	for i := range users {
		if f := users[i].Flags(); len(f) > 0 {
			out[users[i].ID] = f
		}
	}
	return out, nil
}

// ScopedStatuses returns each user's scoped preference for (t, scope), if set.
func (r *Repo) ScopedStatuses(ctx context.Context, t domain.NotificationType, scope domain.Scope, userIDs []string) (map[string]domain.PreferenceStatus, error) {
	out := make(map[string]domain.PreferenceStatus, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var prefs []domain.Preference
	err := r.db.WithContext(ctx).
		Where("notification_type = ? AND type = ? AND reference_id = ? AND user_id IN ?",
			t, scope.Kind, scope.ReferenceID, userIDs).
		Find(&prefs).Error
	if err != nil {
		return nil, err
	}
	for _, p := range prefs {
		out[p.UserID] = p.Status
	}
	return out, nil
}

// SetPreference upserts a scoped preference.
func (r *Repo) SetPreference(ctx context.Context, p *domain.Preference) error {
	return r.db.WithContext(ctx).Save(p).Error
}
