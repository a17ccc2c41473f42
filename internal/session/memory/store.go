// Package memory provides an in-memory session store for development and
// tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/session"
)

// Store implements session.Store with a mutex-guarded map.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]session.Session
}

// New constructs a Store.
func New() *Store {
	return &Store{sessions: make(map[uuid.UUID]session.Session)}
}

// Create stores a new session.
func (s *Store) Create(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return errors.New("session already exists")
	}
	s.sessions[sess.ID] = sess
	return nil
}

// UpsertURLs checkpoints the discovered URL list.
func (s *Store) UpsertURLs(_ context.Context, id uuid.UUID, urls []extract.DiscoveredURL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.ErrNotFound
	}
	sess.URLs = append([]extract.DiscoveredURL(nil), urls...)
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[id] = sess
	return nil
}

// UpsertDataset checkpoints the aggregated dataset.
func (s *Store) UpsertDataset(_ context.Context, id uuid.UUID, dataset extract.AggregatedDataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.ErrNotFound
	}
	sess.Dataset = &dataset
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[id] = sess
	return nil
}

// SetStatus updates the lifecycle state.
func (s *Store) SetStatus(_ context.Context, id uuid.UUID, status session.Status, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.ErrNotFound
	}
	sess.Status = status
	sess.ErrorText = errText
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[id] = sess
	return nil
}

// Get fetches a session by id.
func (s *Store) Get(_ context.Context, id uuid.UUID) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}
