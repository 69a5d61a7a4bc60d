package preference

import (
	"context"
	"fmt"

	"github.com/go-notify/internal/domain"
)

// Store is the read side of preference storage the resolver needs.
type Store interface {
	// GlobalFlags returns the global settings of each user that has any.
	GlobalFlags(ctx context.Context, userIDs []string) (map[string]domain.NotificationFlags, error)
	// ScopedStatuses returns the scoped preference of each user that has a row
	// for (t, scope).
	ScopedStatuses(ctx context.Context, t domain.NotificationType, scope domain.Scope, userIDs []string) (map[string]domain.PreferenceStatus, error)
}

// Resolver decides channel eligibility from the two-level preference hierarchy.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// IsEligible reports whether userID should receive a notification of type t on ch.
// scope may be nil when the notification has no narrower context.
func (r *Resolver) IsEligible(ctx context.Context, userID string, t domain.NotificationType, ch domain.Channel, scope *domain.Scope) (bool, error) {
	ids, err := r.Eligible(ctx, []string{userID}, t, ch, scope)
	if err != nil {
		return false, err
	}
	return len(ids) == 1, nil
}

// Eligible returns the subset of userIDs eligible for t on ch, preserving order.
// It applies the same decision as IsEligible with two queries for the whole set.
func (r *Resolver) Eligible(ctx context.Context, userIDs []string, t domain.NotificationType, ch domain.Channel, scope *domain.Scope) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	flags, err := r.store.GlobalFlags(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load global preferences: %w", err)
	}
	var scoped map[string]domain.PreferenceStatus
	if scope != nil {
		scoped, err = r.store.ScopedStatuses(ctx, t, *scope, userIDs)
		if err != nil {
			return nil, fmt.Errorf("load scoped preferences: %w", err)
		}
	}

	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if Decide(t, ch, flags[id], scoped[id]) {
			out = append(out, id)
		}
	}
	return out, nil
}

// Decide is the precedence rule: a global mute is an absolute veto, then a
// scoped row wins, then an explicit global status, then the type default.
// An empty scoped status means no scoped row exists.
func Decide(t domain.NotificationType, ch domain.Channel, global domain.NotificationFlags, scoped domain.PreferenceStatus) bool {
	if global.Muted(t, ch) {
		return false
	}
	switch scoped {
	case domain.StatusMuted:
		return false
	case domain.StatusSubscribed:
		return true
	}
	if s, ok := global[t]; ok && s.Status(ch) == domain.StatusSubscribed {
		return true
	}
	return t.DefaultStatus(ch) == domain.StatusSubscribed
}
