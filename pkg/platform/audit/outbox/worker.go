// Package outbox relays audit events from the outbox table to the event bus.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	audit "github.com/cernops/keystone/pkg/platform/audit"
)

// Source hands out pending outbox entries under a lock. fn returns the IDs
// it delivered; only those are marked published.
type Source interface {
	Claim(ctx context.Context, limit uint, fn func(ctx context.Context, entries []audit.OutboxEntry) ([]string, error)) (int, error)
}

// Producer delivers entries to the event bus and returns the delivered IDs.
type Producer interface {
	Publish(ctx context.Context, entries []audit.OutboxEntry) ([]string, error)
}

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Worker polls a Source and relays entries to a Producer.
type Worker struct {
	source    Source
	producer  Producer
	interval  time.Duration
	batchSize uint
	logger    *slog.Logger
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n uint) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func New(source Source, producer Producer, opts ...Option) *Worker {
	w := &Worker{
		source:    source,
		producer:  producer,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays entries until ctx is cancelled. A failed poll is logged and
// retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.WarnContext(ctx, "outbox relay failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Drain relays batches until the source has nothing left or a batch fails.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := w.ProcessOnce(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < int(w.batchSize) {
			return total, nil
		}
	}
}

// ProcessOnce relays a single batch and returns how many entries were published.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	n, err := w.source.Claim(ctx, w.batchSize, w.producer.Publish)
	if n > 0 {
		w.logger.DebugContext(ctx, "outbox entries published", "count", n)
	}
	return n, err
}
