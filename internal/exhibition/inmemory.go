package exhibition

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps the catalog in process for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	items []Exhibition
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) List(_ context.Context) ([]Exhibition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Exhibition, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *InMemoryStore) ReplaceAll(_ context.Context, items []Exhibition) error {
	next := normalize(items)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = next
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// normalize assigns missing ids/timestamps and orders by name.
func normalize(items []Exhibition) []Exhibition {
	now := time.Now().UTC()
	out := make([]Exhibition, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if it.UpdatedAt.IsZero() {
			it.UpdatedAt = now
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
