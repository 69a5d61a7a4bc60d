package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-notify/internal/domain"
	"github.com/go-notify/internal/infrastructure/sns"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// endpointConcurrency bounds SNS publishes in flight for one batch.
const endpointConcurrency = 8

type deviceStore interface {
	EnabledDevices(ctx context.Context, userIDs []string) ([]domain.Device, error)
	DisableDevice(ctx context.Context, deviceID string) error
}

// Gateway fans a push notification out to every enabled device of the users.
type Gateway struct {
	repo   deviceStore
	sender sns.PushSender
	log    *zap.Logger
}

func NewGateway(repo deviceStore, sender sns.PushSender, log *zap.Logger) *Gateway {
	return &Gateway{repo: repo, sender: sender, log: log.Named("device")}
}

// SendPush delivers n to the devices of userIDs. Endpoints the provider reports
// as disabled are switched off and do not count as failures. Any other failure
// is returned after every device was attempted.
func (g *Gateway) SendPush(ctx context.Context, userIDs []string, n domain.Notification, avatar *domain.Avatar) error {
	devices, err := g.repo.EnabledDevices(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("load devices: %w", err)
	}
	msg := Message(n, avatar)

	errs := make([]error, len(devices))
	var eg errgroup.Group
	eg.SetLimit(endpointConcurrency)
	for i, d := range devices {
		eg.Go(func() error {
			err := g.sender.SendPush(ctx, d.EndpointARN, msg)
			if errors.Is(err, sns.ErrEndpointDisabled) {
				if derr := g.repo.DisableDevice(ctx, d.DeviceID); derr != nil {
					g.log.Warn("disable device failed", zap.String("device_id", d.DeviceID), zap.Error(derr))
				}
				return nil
			}
			if err != nil {
				errs[i] = fmt.Errorf("device %s: %w", d.DeviceID, err)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}

// Message renders n as a push message; avatar, when present, is the icon.
func Message(n domain.Notification, avatar *domain.Avatar) sns.PushMessage {
	msg := sns.PushMessage{
		Title: n.Title,
		URL:   n.TargetURL,
		Data: map[string]string{
			"notificationId": n.ID,
			"type":           string(n.Type),
		},
	}
	if n.Description != nil {
		msg.Body = *n.Description
	}
	if avatar != nil {
		msg.Image = avatar.Image
	}
	return msg
}
