package delivery

import (
	"context"
	"fmt"

	"github.com/go-notify/internal/domain"
	"github.com/go-notify/internal/pkg/stream"
	"go.uber.org/zap"
)

type presence interface {
	ConnectedSubsetOf(ctx context.Context, userIDs []string) ([]string, error)
}

type userStore interface {
	UsersByIDs(ctx context.Context, ids []string) ([]domain.User, error)
}

type avatarStore interface {
	AvatarsByIDs(ctx context.Context, ids []string) ([]domain.Avatar, error)
}

// PushGateway delivers one push notification to many users.
type PushGateway interface {
	SendPush(ctx context.Context, userIDs []string, n domain.Notification, avatar *domain.Avatar) error
}

// Push sends a notification to recipients who are not connected in real time.
type Push struct {
	recipients  recipientStore
	avatars     avatarStore
	users       userStore
	presence    presence
	gateway     PushGateway
	batchSize   int
	concurrency int
	log         *zap.Logger
}

type PushDeps struct {
	Recipients  recipientStore
	Avatars     avatarStore
	Users       userStore
	Presence    presence
	Gateway     PushGateway
	BatchSize   int
	Concurrency int
	Logger      *zap.Logger
}

func NewPush(deps PushDeps) *Push {
	return &Push{
		recipients:  deps.Recipients,
		avatars:     deps.Avatars,
		users:       deps.Users,
		presence:    deps.Presence,
		gateway:     deps.Gateway,
		batchSize:   deps.BatchSize,
		concurrency: deps.Concurrency,
		log:         deps.Logger.Named(ChannelPush),
	}
}

func (p *Push) Handle(ctx context.Context, n domain.Notification) (Report, error) {
	if !n.Public {
		return skipped(ChannelPush, "private"), nil
	}
	avatar, err := p.firstAvatar(ctx, n)
	if err != nil {
		return Report{}, err
	}
	cur, err := p.recipients.StreamRecipients(ctx, n.ID)
	if err != nil {
		return Report{}, err
	}

	var c counters
	err = stream.ProcessInBatches(ctx, cur, p.concurrency, p.batchSize, func(ctx context.Context, batch []domain.UserNotification) error {
		c.batches.Add(1)
		c.recipients.Add(int64(len(batch)))
		ids := userIDs(batch)

		targets := p.offline(ctx, n.ID, ids)
		if n.Type.IsFollow() && len(targets) > 0 {
			var ferr error
			targets, ferr = p.followOptedIn(ctx, targets)
			if ferr != nil {
				c.failed.Add(int64(len(ids)))
				p.log.Error("load follow settings failed", zap.String("notification_id", n.ID), zap.Error(ferr))
				return nil
			}
		}
		c.skipped.Add(int64(len(ids) - len(targets)))
		if len(targets) == 0 {
			return nil
		}

		if err := p.gateway.SendPush(ctx, targets, n, avatar); err != nil {
			c.failed.Add(int64(len(targets)))
			p.log.Error("push batch failed",
				zap.String("notification_id", n.ID),
				zap.Int("users", len(targets)),
				zap.Error(err))
			return nil
		}
		c.delivered.Add(int64(len(targets)))
		return nil
	})
	rep := c.report(ChannelPush)
	logReport(p.log, n.ID, rep)
	return rep, err
}

// offline drops users with a live connection. A presence lookup failure
// treats everyone as offline.
func (p *Push) offline(ctx context.Context, notificationID string, ids []string) []string {
	connected, err := p.presence.ConnectedSubsetOf(ctx, ids)
	if err != nil {
		p.log.Warn("presence lookup failed, pushing to all",
			zap.String("notification_id", notificationID),
			zap.Error(err))
		return ids
	}
	if len(connected) == 0 {
		return ids
	}
	live := make(map[string]struct{}, len(connected))
	for _, id := range connected {
		live[id] = struct{}{}
	}
	out := make([]string, 0, len(ids)-len(connected))
	for _, id := range ids {
		if _, ok := live[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (p *Push) followOptedIn(ctx context.Context, ids []string) ([]string, error) {
	users, err := p.users.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	optedIn := make(map[string]struct{}, len(users))
	for _, u := range users {
		if u.FollowNotifications {
			optedIn[u.ID] = struct{}{}
		}
	}
	out := make([]string, 0, len(optedIn))
	for _, id := range ids {
		if _, ok := optedIn[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (p *Push) firstAvatar(ctx context.Context, n domain.Notification) (*domain.Avatar, error) {
	if len(n.AvatarIDs) == 0 {
		return nil, nil
	}
	avatars, err := p.avatars.AvatarsByIDs(ctx, n.AvatarIDs[:1])
	if err != nil {
		return nil, fmt.Errorf("load push avatar: %w", err)
	}
	if len(avatars) == 0 {
		return nil, nil
	}
	return &avatars[0], nil
}

func userIDs(rows []domain.UserNotification) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.UserID
	}
	return out
}
