// Package relay moves events from the transactional outbox to the broker.
package relay

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-store/internal/domain/event"
)

// Store hands out pending outbox events. publish runs while the batch is
// locked; the batch is marked sent only if publish returns nil.
type Store interface {
	ProcessPending(ctx context.Context, limit int, publish func(ctx context.Context, events []event.Event) error) (int, error)
}

// Publisher delivers a batch of events.
type Publisher interface {
	Publish(ctx context.Context, events []event.Event) error
}

// Relay polls the outbox and publishes what it finds. Delivery is
// at-least-once: a crash after publish and before commit resends the batch.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
}

// New creates a Relay. A non-positive interval falls back to one second and
// a non-positive batchSize to 100.
func New(store Store, publisher Publisher, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Flush publishes batches until the outbox has no more pending events and
// returns how many were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var total int
	for {
		n, err := r.store.ProcessPending(ctx, r.batchSize, r.publisher.Publish)
		total += n
		if err != nil {
			return total, errors.Wrap(err, "process outbox batch")
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}

// Run flushes every interval until ctx is cancelled. Failed flushes are
// logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx).Named("relay")
	lg.Info("Outbox relay started",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil && ctx.Err() == nil {
				lg.Error("Outbox flush failed", zap.Int("sent", n), zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Debug("Outbox flushed", zap.Int("sent", n))
			}
		}
	}
}
