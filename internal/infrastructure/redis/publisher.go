package redis

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher broadcasts JSON payloads on Redis pub/sub channels, which the
// real-time gateway relays to connected clients.
type Publisher struct {
	client cmdable
}

func NewPublisher(client cmdable) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", channel, err)
	}
	return p.client.Publish(ctx, channel, body).Err()
}
