package presence

import (
	"context"
	"fmt"

	"github.com/go-notify/internal/domain"
	"github.com/go-notify/internal/pkg/validate"
)

type cache interface {
	MarkConnected(ctx context.Context, userID string) error
	ClearConnected(ctx context.Context, userID string) error
}

type Service interface {
	// Connected marks the user live, refreshing the TTL on repeat connects.
	Connected(ctx context.Context, ev domain.PresenceChanged) error
	Disconnected(ctx context.Context, ev domain.PresenceChanged) error
}

type service struct {
	cache cache
}

func NewService(c cache) Service {
	return &service{cache: c}
}

func (s *service) Connected(ctx context.Context, ev domain.PresenceChanged) error {
	if err := validate.Struct(ev); err != nil {
		return err
	}
	if err := s.cache.MarkConnected(ctx, ev.UserID); err != nil {
		return fmt.Errorf("mark %s connected: %w", ev.UserID, err)
	}
	return nil
}

func (s *service) Disconnected(ctx context.Context, ev domain.PresenceChanged) error {
	if err := validate.Struct(ev); err != nil {
		return err
	}
	if err := s.cache.ClearConnected(ctx, ev.UserID); err != nil {
		return fmt.Errorf("clear %s connected: %w", ev.UserID, err)
	}
	return nil
}
