package worker

import (
	"context"

	"provenance/internal/platform/kafka/consumer"
	"provenance/internal/platform/kafka/producer"
)

// LocalPublisher hands relayed entries straight to a consumer-side handler.
// It stands in for the broker when Kafka is not configured, so the outbox
// still drains into the audit projection.
type LocalPublisher struct {
	handler consumer.Handler
}

func NewLocalPublisher(handler consumer.Handler) *LocalPublisher {
	return &LocalPublisher{handler: handler}
}

// Publish delivers msgs in order and stops at the first handler error, which
// makes RelayBatch keep the whole batch for the next tick.
func (p *LocalPublisher) Publish(ctx context.Context, msgs ...producer.Message) error {
	for i, m := range msgs {
		msg := &consumer.Message{
			Topic:   "local",
			Offset:  int64(i),
			Key:     m.Key,
			Value:   m.Value,
			Headers: m.Headers,
		}
		if err := p.handler.Handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
