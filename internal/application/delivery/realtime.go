package delivery

import (
	"context"
	"fmt"

	"github.com/go-notify/internal/domain"
	"github.com/go-notify/internal/pkg/stream"
	"go.uber.org/zap"
)

type recipientStore interface {
	StreamRecipients(ctx context.Context, notificationID string) (stream.Cursor[domain.UserNotification], error)
}

type expander interface {
	Expand(ctx context.Context, n domain.Notification) (*domain.ExpandedNotification, error)
}

type channelPublisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// Realtime publishes each new notification to every recipient's live channel.
type Realtime struct {
	recipients  recipientStore
	expander    expander
	publisher   channelPublisher
	concurrency int
	log         *zap.Logger
}

type RealtimeDeps struct {
	Recipients  recipientStore
	Expander    expander
	Publisher   channelPublisher
	Concurrency int
	Logger      *zap.Logger
}

func NewRealtime(deps RealtimeDeps) *Realtime {
	return &Realtime{
		recipients:  deps.Recipients,
		expander:    deps.Expander,
		publisher:   deps.Publisher,
		concurrency: deps.Concurrency,
		log:         deps.Logger.Named(ChannelRealtime),
	}
}

// Handle publishes n to each recipient. A failed publish is logged and counted;
// it never fails the stream.
func (r *Realtime) Handle(ctx context.Context, n domain.Notification) (Report, error) {
	if !n.Public {
		return skipped(ChannelRealtime, "private"), nil
	}
	payload, err := r.expander.Expand(ctx, n)
	if err != nil {
		return Report{}, fmt.Errorf("expand notification %s: %w", n.ID, err)
	}
	cur, err := r.recipients.StreamRecipients(ctx, n.ID)
	if err != nil {
		return Report{}, err
	}

	var c counters
	err = stream.Process(ctx, cur, r.concurrency, func(ctx context.Context, un domain.UserNotification) error {
		c.recipients.Add(1)
		if err := r.publisher.Publish(ctx, domain.RealtimeChannel(un.UserID), payload); err != nil {
			c.failed.Add(1)
			r.log.Warn("realtime publish failed",
				zap.String("notification_id", n.ID),
				zap.String("user_id", un.UserID),
				zap.Error(err))
			return nil
		}
		c.delivered.Add(1)
		return nil
	})
	rep := c.report(ChannelRealtime)
	logReport(r.log, n.ID, rep)
	return rep, err
}
