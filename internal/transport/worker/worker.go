// Package worker binds every pipeline handler to its transport subscription.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-notify/internal/application/delivery"
	"github.com/go-notify/internal/application/presence"
	"github.com/go-notify/internal/domain"
	"go.uber.org/zap"
)

// Subscription names, one durable queue each.
const (
	SubAssembler          = "api.notification-assembler"
	SubRealtime           = "api.notification-realtime"
	SubPush               = "api.notification-push"
	SubEmail              = "api.notification-email"
	SubPresenceConnect    = "api.presence-connected"
	SubPresenceDisconnect = "api.presence-disconnected"
)

type subscriber interface {
	Subscribe(ctx context.Context, subscription, topic string, handle func(context.Context, []byte) error) error
}

type fanout interface {
	Handle(ctx context.Context, n domain.Notification) (delivery.Report, error)
}

type assembler interface {
	Assemble(ctx context.Context, t domain.NotificationType, c domain.Context) (*domain.Notification, error)
}

// Subscription routes one topic to one handler under a durable name.
type Subscription struct {
	Name   string
	Topic  string
	Handle func(ctx context.Context, payload []byte) error
}

type Deps struct {
	Assembler assembler
	// Producer defaults to RequestedProducer.
	Producer Producer
	Realtime fanout
	Push     fanout
	Email    fanout
	Presence presence.Service
	Logger   *zap.Logger
}

// Subscriptions returns every worker the process runs.
func Subscriptions(d Deps) []Subscription {
	produce := d.Producer
	if produce == nil {
		produce = RequestedProducer
	}
	subs := []Subscription{
		{Name: SubAssembler, Topic: domain.TopicNotificationRequested, Handle: assemble(d.Assembler, produce)},
		{Name: SubRealtime, Topic: domain.TopicNotificationCreated, Handle: fanoutHandler(d.Realtime)},
		{Name: SubPush, Topic: domain.TopicNotificationCreated, Handle: fanoutHandler(d.Push)},
		{Name: SubEmail, Topic: domain.TopicNotificationCreated, Handle: fanoutHandler(d.Email)},
		{Name: SubPresenceConnect, Topic: domain.TopicUserConnected, Handle: presenceHandler(d.Presence.Connected)},
		{Name: SubPresenceDisconnect, Topic: domain.TopicUserDisconnected, Handle: presenceHandler(d.Presence.Disconnected)},
	}
	for i := range subs {
		subs[i].Handle = settle(d.Logger.With(zap.String("subscription", subs[i].Name)), subs[i].Handle)
	}
	return subs
}

// Register subscribes every worker. It stops at the first failure.
func Register(ctx context.Context, s subscriber, subs []Subscription) error {
	for _, sub := range subs {
		if err := s.Subscribe(ctx, sub.Name, sub.Topic, sub.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.Name, err)
		}
	}
	return nil
}

// settle maps handler errors onto ack and nack. Malformed input and missing
// subjects are acked since redelivery cannot fix them.
func settle(log *zap.Logger, h func(context.Context, []byte) error) func(context.Context, []byte) error {
	return func(ctx context.Context, payload []byte) error {
		err := h(ctx, payload)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrBadRequest):
			log.Warn("dropping invalid message", zap.Error(err), zap.ByteString("payload", truncate(payload, 512)))
			return nil
		case errors.Is(err, domain.ErrNotFound):
			log.Info("subject gone, nothing to notify", zap.Error(err))
			return nil
		case errors.Is(err, domain.ErrConflict):
			log.Debug("conflict absorbed", zap.Error(err))
			return nil
		default:
			return err
		}
	}
}

func assemble(a assembler, produce Producer) func(context.Context, []byte) error {
	return func(ctx context.Context, payload []byte) error {
		generated, err := produce(payload)
		if err != nil {
			return err
		}
		for _, g := range generated {
			if _, err := a.Assemble(ctx, g.Type, g.Context); err != nil {
				return err
			}
		}
		return nil
	}
}

func fanoutHandler(f fanout) func(context.Context, []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var ev domain.NotificationCreated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode created event: %v: %w", err, domain.ErrBadRequest)
		}
		if ev.Notification.ID == "" {
			return fmt.Errorf("created event without notification id: %w", domain.ErrBadRequest)
		}
		_, err := f.Handle(ctx, ev.Notification)
		return err
	}
}

func presenceHandler(fn func(context.Context, domain.PresenceChanged) error) func(context.Context, []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var ev domain.PresenceChanged
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode presence event: %v: %w", err, domain.ErrBadRequest)
		}
		return fn(ctx, ev)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
