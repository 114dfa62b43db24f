// Package outbox publishes committed domain events from the events table to
// the message broker. Delivery is at least once: an event published right
// before a crash is published again after restart.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/metrics"
)

// Publisher is implemented by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, event any) error
}

// EventSource is the part of the store the relay reads and updates.
type EventSource interface {
	ListPendingEvents(ctx context.Context, limit int) ([]store.Event, error)
	MarkEventsPublished(ctx context.Context, ids []string, at time.Time) error
}

type Relay struct {
	events    EventSource
	publisher Publisher
	metrics   *metrics.Metrics
	log       *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewRelay(events EventSource, publisher Publisher, m *metrics.Metrics, log *slog.Logger, interval time.Duration, batchSize int) *Relay {
	return &Relay{
		events:    events,
		publisher: publisher,
		metrics:   m,
		log:       log,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run publishes pending events every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	r.log.InfoContext(ctx, "outbox relay started", "interval", r.interval.String(), "batch_size", r.batchSize)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return
		case <-ticker.C:
			// Drain full batches before waiting for the next tick.
			for {
				n, err := r.PublishPending(ctx)
				if err != nil {
					if ctx.Err() == nil {
						r.log.ErrorContext(ctx, "outbox publish failed", "error", err, "published", n)
					}
					break
				}
				if n < r.batchSize {
					break
				}
			}
		}
	}
}

// PublishPending publishes one batch in order and marks what was sent. It
// stops at the first publish failure; the rest stays pending for the next
// call. It returns how many events were published.
func (r *Relay) PublishPending(ctx context.Context) (int, error) {
	events, err := r.events.ListPendingEvents(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := make([]string, 0, len(events))
	var publishErr error
	for _, e := range events {
		if err := r.publisher.Publish(ctx, e.AggregateID, e.EventType, e); err != nil {
			publishErr = err
			break
		}
		published = append(published, e.ID)
	}

	if len(published) > 0 {
		if err := r.events.MarkEventsPublished(ctx, published, time.Now().UTC()); err != nil {
			return 0, err
		}
		r.metrics.OutboxPublished(len(published))
		r.log.DebugContext(ctx, "outbox events published", "count", len(published))
	}
	return len(published), publishErr
}
