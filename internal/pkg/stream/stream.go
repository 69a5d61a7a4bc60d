// Package stream consumes row cursors with bounded concurrency so fan-out work
// never materializes a full recipient set in memory.
package stream

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Cursor is a forward-only iterator over rows of type T, typically backed by a
// server-side database cursor.
type Cursor[T any] interface {
	Next() bool
	Value() (T, error)
	Err() error
	Close() error
}

// Process calls fn once per row with at most concurrency calls in flight.
// Reading pauses while the pool is full. The first cursor or fn error stops
// reading, cancels ctx for in-flight calls and is returned once they drain.
func Process[T any](ctx context.Context, cur Cursor[T], concurrency int, fn func(context.Context, T) error) error {
	return run(ctx, cur, concurrency, func(g *errgroup.Group, gctx context.Context, row T) {
		g.Go(func() error { return fn(gctx, row) })
	}, nil)
}

// ProcessInBatches accumulates rows into slices of batchSize and calls fn once
// per slice with at most concurrency calls in flight. A final partial batch is
// flushed when the cursor ends.
func ProcessInBatches[T any](ctx context.Context, cur Cursor[T], concurrency, batchSize int, fn func(context.Context, []T) error) error {
	if batchSize < 1 {
		return fmt.Errorf("stream: batch size must be positive, got %d", batchSize)
	}
	batch := make([]T, 0, batchSize)
	flush := func(g *errgroup.Group, gctx context.Context) {
		if len(batch) == 0 {
			return
		}
		b := batch
		batch = make([]T, 0, batchSize)
		g.Go(func() error { return fn(gctx, b) })
	}
	return run(ctx, cur, concurrency, func(g *errgroup.Group, gctx context.Context, row T) {
		batch = append(batch, row)
		if len(batch) == batchSize {
			flush(g, gctx)
		}
	}, flush)
}

func run[T any](
	ctx context.Context,
	cur Cursor[T],
	concurrency int,
	onRow func(*errgroup.Group, context.Context, T),
	onEnd func(*errgroup.Group, context.Context),
) (err error) {
	if concurrency < 1 {
		return fmt.Errorf("stream: concurrency must be positive, got %d", concurrency)
	}
	defer func() {
		if cerr := cur.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("stream: close cursor: %w", cerr)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var readErr error
	for gctx.Err() == nil && cur.Next() {
		row, verr := cur.Value()
		if verr != nil {
			readErr = fmt.Errorf("stream: read row: %w", verr)
			break
		}
		onRow(g, gctx, row)
	}
	if readErr == nil {
		if cerr := cur.Err(); cerr != nil {
			readErr = fmt.Errorf("stream: cursor: %w", cerr)
		}
	}
	if readErr == nil && onEnd != nil && gctx.Err() == nil {
		onEnd(g, gctx)
	}

	werr := g.Wait()
	if readErr != nil {
		return readErr
	}
	if werr != nil {
		return werr
	}
	// Cancelled by the caller rather than by a failing fn.
	return ctx.Err()
}

// SliceCursor adapts an in-memory slice to Cursor.
type SliceCursor[T any] struct {
	rows []T
	pos  int
}

// FromSlice returns a Cursor over rows.
func FromSlice[T any](rows []T) *SliceCursor[T] {
	return &SliceCursor[T]{rows: rows, pos: -1}
}

func (c *SliceCursor[T]) Next() bool {
	if c.pos+1 >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor[T]) Value() (T, error) { return c.rows[c.pos], nil }
func (c *SliceCursor[T]) Err() error        { return nil }
func (c *SliceCursor[T]) Close() error      { return nil }
