// tokenstore/memory.go
package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. It is the default store when none is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Load returns a copy of the record stored under key.
func (s *MemoryStore) Load(ctx context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(r), nil
}

// Save stores a copy of record under key.
func (s *MemoryStore) Save(ctx context.Context, key string, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = cloneRecord(record)
	return nil
}

// Delete removes the record under key. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
