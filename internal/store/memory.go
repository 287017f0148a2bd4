package store

import (
	"context"
	"sync"

	"github.com/lqx/pool-engine/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for testing
// and single-process development runs (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	events []model.Event
}

// NewMemoryStore creates a new in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendEvent(_ context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *event)
	return nil
}

func (s *MemoryStore) RecentEvents(_ context.Context, limit int) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}

	result := make([]model.Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.events[i])
	}
	return result, nil
}

func (s *MemoryStore) EventsByKind(_ context.Context, kind string) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Kind == kind {
			result = append(result, s.events[i])
		}
	}
	return result, nil
}
