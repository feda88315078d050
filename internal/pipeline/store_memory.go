package pipeline

import (
	"context"
	"sync"
)

// MemoryStore keeps the most recent records in memory. It backs the
// query API when no external store is configured, and the worker tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	limit   int
}

// NewMemoryStore creates a memory store retaining at most limit records.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 10000
	}
	return &MemoryStore{limit: limit}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if len(s.records) > s.limit {
		s.records = s.records[len(s.records)-s.limit:]
	}
	return nil
}

// ListRecent returns up to limit records, most recent first.
func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if limit > n {
		limit = n
	}
	out := make([]Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}
