package worker

import (
	"context"
	"log/slog"
	"time"

	"provenance/internal/platform/kafka/producer"
	"provenance/pkg/platform/audit/store/postgres"
)

// Outbox is the relay's view of the outbox table.
type Outbox interface {
	RelayBatch(ctx context.Context, limit int, publish func(ctx context.Context, entries []postgres.OutboxEntry) error) (int, error)
}

// Publisher sends relayed entries to the broker.
type Publisher interface {
	Publish(ctx context.Context, msgs ...producer.Message) error
}

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Worker moves committed outbox rows to Kafka. Each row is keyed by its
// aggregate so events of one asset keep their order within a partition.
type Worker struct {
	outbox    Outbox
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func NewWorker(outbox Outbox, publisher Publisher, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. Full batches are followed immediately by
// another pass; otherwise the worker sleeps for the poll interval.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		n, err := w.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
		}
		if n == w.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and reports how many entries it moved.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	return w.outbox.RelayBatch(ctx, w.batchSize, func(ctx context.Context, entries []postgres.OutboxEntry) error {
		msgs := make([]producer.Message, len(entries))
		for i, e := range entries {
			msgs[i] = producer.Message{
				Key:   []byte(e.AggregateType + ":" + e.AggregateID),
				Value: e.Payload,
				Headers: map[string]string{
					"event_type": e.EventType,
					"outbox_id":  e.ID.String(),
				},
			}
		}
		return w.publisher.Publish(ctx, msgs...)
	})
}
