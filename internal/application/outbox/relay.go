// Package outbox publishes events that were committed to the outbox table.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-notify/internal/domain"
	"go.uber.org/zap"
)

type store interface {
	DrainOutbox(ctx context.Context, limit int, fn func(context.Context, domain.OutboxEvent) error) (int, error)
}

type publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

// Relay moves committed outbox events onto the message transport. An event is
// deleted only after its publish succeeds, so delivery is at-least-once.
type Relay struct {
	store     store
	publisher publisher
	batchSize int
	interval  time.Duration
	wake      chan struct{}
	log       *zap.Logger
}

type RelayDeps struct {
	Store     store
	Publisher publisher
	// BatchSize defaults to 100.
	BatchSize int
	// Interval is the poll period used when nobody calls Wake. Defaults to 1s.
	Interval time.Duration
	Logger   *zap.Logger
}

func NewRelay(deps RelayDeps) *Relay {
	batch := deps.BatchSize
	if batch <= 0 {
		batch = 100
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = time.Second
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		store:     deps.Store,
		publisher: deps.Publisher,
		batchSize: batch,
		interval:  interval,
		wake:      make(chan struct{}, 1),
		log:       log.Named("outbox"),
	}
}

// Wake asks Run to flush now. It never blocks.
func (r *Relay) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Flush publishes pending events until the outbox is drained or a publish fails.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.store.DrainOutbox(ctx, r.batchSize, r.publish)
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}

// Run flushes at start, on every Wake and on every tick until ctx is done.
// Failures are logged and retried on the next round.
func (r *Relay) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		n, err := r.Flush(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			r.log.Warn("outbox flush failed", zap.Int("published", n), zap.Error(err))
		case n > 0:
			r.log.Debug("outbox flushed", zap.Int("published", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		case <-t.C:
		}
	}
}

func (r *Relay) publish(ctx context.Context, e domain.OutboxEvent) error {
	if err := r.publisher.Publish(ctx, e.Topic, json.RawMessage(e.Payload)); err != nil {
		return fmt.Errorf("publish %s %s: %w", e.Topic, e.ID, err)
	}
	return nil
}
