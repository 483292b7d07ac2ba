package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultInMemoryLimit = 1024

// InMemoryStore keeps the most recent entries per owner in process.
type InMemoryStore struct {
	mu       sync.RWMutex
	perOwner int
	records  map[string][]Entry
}

func NewInMemoryStore(perOwner int) *InMemoryStore {
	if perOwner <= 0 {
		perOwner = defaultInMemoryLimit
	}
	return &InMemoryStore{perOwner: perOwner, records: make(map[string][]Entry)}
}

func (s *InMemoryStore) Record(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	arr := append(s.records[entry.OwnerID], entry)
	if len(arr) > s.perOwner {
		arr = arr[len(arr)-s.perOwner:]
	}
	s.records[entry.OwnerID] = arr
	return nil
}

// Recent returns up to limit entries for ownerID in chronological order.
func (s *InMemoryStore) Recent(_ context.Context, ownerID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[ownerID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Entry, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
