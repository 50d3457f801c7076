// Package publisher fans ledger events out to an audit.Store after the
// command that produced them has committed. Emission never fails a command:
// errors are logged and counted, and callers may ignore the returned error.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "provenance/pkg/platform/audit"
)

var (
	errBufferFull = errors.New("audit buffer full")
	errClosed     = errors.New("audit publisher closed")
)

// Publisher writes events to a store, synchronously by default or through a
// bounded buffer drained by one goroutine.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
	buffer chan audit.Event
	wg     sync.WaitGroup
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with a buffer of size n.
// Events that do not fit are dropped.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = make(chan audit.Event, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records event. The timestamp is filled in when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.buffer == nil {
		return p.persist(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errClosed
	}
	select {
	case p.buffer <- event:
		return nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.metrics.incDropped()
	if p.logger != nil {
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"entity_kind", event.EntityKind,
			"entity_id", event.EntityID,
		)
	}
	return errBufferFull
}

// List returns the history of one entity when the store can serve reads.
func (p *Publisher) List(ctx context.Context, kind, entityID string) ([]audit.Event, error) {
	reader, ok := p.store.(audit.Reader)
	if !ok {
		return nil, errors.New("audit store does not support reads")
	}
	return reader.ListByEntity(ctx, kind, entityID)
}

// Close stops accepting events and waits for the buffer to drain.
func (p *Publisher) Close() {
	if p.buffer == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.buffer)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		_ = p.persist(context.Background(), event)
	}
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.incPersistFailures()
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "failed to persist audit event",
				"action", event.Action,
				"entity_kind", event.EntityKind,
				"entity_id", event.EntityID,
				"error", err,
			)
		}
		return err
	}
	p.metrics.incEmitted(event.Category)
	return nil
}
