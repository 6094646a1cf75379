// Package cache implements the content-addressed result cache shared by the
// tools and the agent. Records are only ever appended; a lookup returns the
// newest record for a key.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("cache: store is closed")

// Record is one persisted cache entry.
type Record struct {
	Key       string          `json:"key"`
	Arguments string          `json:"arguments"`
	Value     json.RawMessage `json:"value"`
}

// Store persists cache records.
type Store interface {
	// Get returns the value of the most recent record for key.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	// Append adds a record. Existing records are never rewritten.
	Append(ctx context.Context, rec Record) error
	Close() error
}

// MemoryStore is a process-local Store, mainly for tests and -no-cache runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Key == key {
			return s.records[i].Value, true, nil
		}
	}
	return nil, false, nil
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (s *MemoryStore) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records...)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
