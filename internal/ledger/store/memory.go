package store

import (
	"context"
	"sync"
	"time"

	"provenance/internal/ledger/models"
)

// InMemory keeps the committed state behind a mutex. Commands mutate a deep
// clone which is swapped in on success, so a failed command leaves no trace.
type InMemory struct {
	mu      sync.RWMutex
	state   *models.State
	timeout time.Duration
}

type MemoryOption func(*InMemory)

func WithMemoryTxTimeout(d time.Duration) MemoryOption {
	return func(s *InMemory) {
		s.timeout = d
	}
}

func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{state: models.NewState()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) RunInTx(ctx context.Context, fn TxFunc) error {
	if err := abortIfDone(ctx); err != nil {
		return err
	}
	ctx, cancel := withTxDeadline(ctx, s.timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := abortIfDone(ctx); err != nil {
		return err
	}

	working := s.state.Clone()
	if err := fn(ctx, working); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *InMemory) View(ctx context.Context, fn func(st *models.State) error) error {
	if err := abortIfDone(ctx); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// Snapshot returns a deep copy of the committed state.
func (s *InMemory) Snapshot() *models.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}
