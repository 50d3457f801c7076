package memory

import (
	"context"
	"sync"

	audit "provenance/pkg/platform/audit"
)

type entityKey struct {
	kind string
	id   string
}

// InMemoryStore keeps events in emission order, indexed by entity.
type InMemoryStore struct {
	mu       sync.RWMutex
	events   []audit.Event
	byEntity map[entityKey][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byEntity: make(map[entityKey][]int)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.byEntity = make(map[entityKey][]int)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{kind: event.EntityKind, id: event.EntityID}
	s.byEntity[key] = append(s.byEntity[key], len(s.events))
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByEntity(_ context.Context, kind, entityID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.byEntity[entityKey{kind: kind, id: entityID}]
	out := make([]audit.Event, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.events[i])
	}
	return out, nil
}

// ListAll returns every event in emission order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...), nil
}

// ListRecent returns the last limit events, oldest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := max(len(s.events)-limit, 0)
	return append([]audit.Event{}, s.events[start:]...), nil
}
