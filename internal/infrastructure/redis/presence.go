package redis

import (
	"context"
	"time"
)

const (
	presencePrefix = "presence:"
	// mgetChunk bounds the keys sent in one MGET.
	mgetChunk = 500
)

// Presence records which users hold a live real-time connection. A missing key
// means not connected.
type Presence struct {
	client cmdable
	ttl    time.Duration
}

func NewPresence(client cmdable, ttl time.Duration) *Presence {
	return &Presence{client: client, ttl: ttl}
}

func presenceKey(userID string) string { return presencePrefix + userID }

// MarkConnected records userID as connected for the configured TTL. Calling it
// again refreshes the TTL.
func (p *Presence) MarkConnected(ctx context.Context, userID string) error {
	return p.client.Set(ctx, presenceKey(userID), "1", p.ttl).Err()
}

// ClearConnected removes userID's presence.
func (p *Presence) ClearConnected(ctx context.Context, userID string) error {
	return p.client.Del(ctx, presenceKey(userID)).Err()
}

// ConnectedSubsetOf returns the members of userIDs that are connected, in input order.
func (p *Presence) ConnectedSubsetOf(ctx context.Context, userIDs []string) ([]string, error) {
	var out []string
	for start := 0; start < len(userIDs); start += mgetChunk {
		chunk := userIDs[start:min(start+mgetChunk, len(userIDs))]
		keys := make([]string, len(chunk))
		for i, id := range chunk {
			keys[i] = presenceKey(id)
		}
		vals, err := p.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			if v != nil {
				out = append(out, chunk[i])
			}
		}
	}
	return out, nil
}
