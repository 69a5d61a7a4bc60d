package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-notify/internal/application/preference"
	"github.com/go-notify/internal/domain"
	"github.com/go-notify/internal/pkg/id"
	"github.com/go-notify/internal/pkg/validate"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Service interface {
	// Assemble persists one notification, its eligible delivery rows and the
	// created event in one transaction. The event reaches the transport only
	// after commit. It returns nil when an identical notification already
	// exists; nothing is written in that case.
	Assemble(ctx context.Context, t domain.NotificationType, c domain.Context) (*domain.Notification, error)
}

// Tx is the store surface available inside one assembly transaction.
type Tx interface {
	preference.Store
	ResolveAvatar(ctx context.Context, a domain.Avatar) (string, error)
	ResolveAttachment(ctx context.Context, a domain.Attachment) (string, error)
	// InsertNotification inserts n unless its dedup tuple exists; inserted is
	// false on conflict.
	InsertNotification(ctx context.Context, n *domain.Notification) (inserted bool, err error)
	InsertUserNotifications(ctx context.Context, rows []domain.UserNotification) error
	EnqueueEvent(ctx context.Context, e domain.OutboxEvent) error
}

// Store runs fn in one transaction. An error from fn rolls everything back.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}

type waker interface {
	Wake()
}

type drafter interface {
	Build(t domain.NotificationType, c domain.Context) (*Draft, error)
}

type service struct {
	store  Store
	relay  waker
	drafts drafter
	log    *zap.Logger
	now    func() time.Time
}

type ServiceDeps struct {
	Store Store
	// Relay is woken after a commit that enqueued an event. Optional; a
	// polling relay picks the event up regardless.
	Relay   waker
	Drafter drafter
	Logger  *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &service{
		store:  deps.Store,
		relay:  deps.Relay,
		drafts: deps.Drafter,
		log:    log.Named("assembler"),
		now:    now,
	}
}

func (s *service) Assemble(ctx context.Context, t domain.NotificationType, c domain.Context) (*domain.Notification, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown notification type %q: %w", t, domain.ErrBadRequest)
	}
	if err := validate.Struct(c); err != nil {
		return nil, err
	}
	recipients := uniqueIDs(c.Recipients())
	if len(recipients) == 0 {
		return nil, nil
	}
	draft, err := s.drafts.Build(t, c)
	if err != nil {
		return nil, err
	}
	if key := c.Dedup(); key != "" {
		draft.Notification.UniqueKey = key
	}

	var (
		created  *domain.Notification
		enqueued bool
	)
	err = s.store.Transaction(ctx, func(tx Tx) error {
		n := draft.Notification
		n.AvatarIDs = make([]string, 0, len(draft.Avatars))
		for _, a := range draft.Avatars {
			aid, err := tx.ResolveAvatar(ctx, a)
			if err != nil {
				return fmt.Errorf("resolve avatar %s/%s: %w", a.Kind, a.ReferenceID, err)
			}
			n.AvatarIDs = append(n.AvatarIDs, aid)
		}
		n.AttachmentIDs = make([]string, 0, len(draft.Attachments))
		for _, a := range draft.Attachments {
			aid, err := tx.ResolveAttachment(ctx, a)
			if err != nil {
				return fmt.Errorf("resolve attachment %s/%s: %w", a.Kind, a.ReferenceID, err)
			}
			n.AttachmentIDs = append(n.AttachmentIDs, aid)
		}
		if draft.Scope != nil {
			n.ScopeKind = &draft.Scope.Kind
			n.ScopeReferenceID = &draft.Scope.ReferenceID
		}
		n.ID = id.New()
		n.CreatedAt = s.now().UTC()

		inserted, err := tx.InsertNotification(ctx, &n)
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		if !inserted {
			s.log.Debug("duplicate notification skipped",
				zap.String("type", string(t)),
				zap.String("unique_key", n.UniqueKey))
			return nil
		}

		eligible, err := preference.NewResolver(tx).Eligible(ctx, recipients, t, domain.ChannelInApp, draft.Scope)
		if err != nil {
			return err
		}
		if len(eligible) == 0 {
			created = &n
			return nil
		}

		var userKey *string
		if n.UniqueKey != "0" {
			userKey = &n.UniqueKey
		}
		rows := make([]domain.UserNotification, 0, len(eligible))
		for _, uid := range eligible {
			rows = append(rows, domain.UserNotification{
				NotificationID: n.ID,
				UserID:         uid,
				CreatedAt:      n.CreatedAt,
				Public:         n.Public,
				UniqueKey:      userKey,
			})
		}
		if err := tx.InsertUserNotifications(ctx, rows); err != nil {
			return fmt.Errorf("insert user notifications: %w", err)
		}
		payload, err := json.Marshal(domain.NotificationCreated{Notification: n})
		if err != nil {
			return fmt.Errorf("encode %s: %w", domain.TopicNotificationCreated, err)
		}
		err = tx.EnqueueEvent(ctx, domain.OutboxEvent{
			ID:        id.New(),
			Topic:     domain.TopicNotificationCreated,
			Payload:   datatypes.JSON(payload),
			CreatedAt: n.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", domain.TopicNotificationCreated, err)
		}
		enqueued = true
		s.log.Info("notification assembled",
			zap.String("id", n.ID),
			zap.String("type", string(t)),
			zap.Int("recipients", len(rows)))
		created = &n
		return nil
	})
	if err != nil {
		return nil, err
	}
	if enqueued && s.relay != nil {
		s.relay.Wake()
	}
	return created, nil
}

// uniqueIDs drops empty and repeated ids, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, uid := range ids {
		if uid == "" {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
	}
	return out
}
