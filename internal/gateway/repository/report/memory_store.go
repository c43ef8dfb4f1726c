package report

import (
	"context"
	"strings"
	"sync"
)

const memoryCap = 500

// MemoryStore keeps the most recent records in a ring. Default backend when
// no DSN is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []Record
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if strings.TrimSpace(rec.RequestID) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	if len(s.recs) > memoryCap {
		s.recs = s.recs[len(s.recs)-memoryCap:]
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, requestID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.recs) - 1; i >= 0; i-- {
		if s.recs[i].RequestID == requestID {
			return s.recs[i], nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.recs)
	if limit > n {
		limit = n
	}
	out := make([]Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.recs[i])
	}
	return out, nil
}
