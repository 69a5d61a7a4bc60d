package worker

import (
	"encoding/json"
	"fmt"

	"github.com/go-notify/internal/domain"
	"github.com/go-notify/internal/pkg/validate"
)

// Producer turns one domain event payload into the notifications it implies.
// A nil result means the event notifies nobody.
type Producer func(payload []byte) ([]domain.Generated, error)

// RequestedProducer decodes a notification-requested event into the single
// notification it names.
func RequestedProducer(payload []byte) ([]domain.Generated, error) {
	var ev domain.NotificationRequested
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode notification request: %v: %w", err, domain.ErrBadRequest)
	}
	if err := validate.Struct(ev); err != nil {
		return nil, err
	}
	c, err := domain.DecodeContext(ev.Type, ev.Context)
	if err != nil {
		return nil, err
	}
	return []domain.Generated{{Type: ev.Type, Context: c}}, nil
}
