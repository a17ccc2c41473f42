// Package memory stores snapshots in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Store keeps blobs in a map and hands back memory:// URIs.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an in-memory Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Put stores a copy of data under path.
func (s *Store) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", path), nil
}

// Get returns the stored bytes for path, if present.
func (s *Store) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	return data, ok
}

// Len reports how many objects are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
