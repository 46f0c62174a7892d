package memory

import (
	"context"
	"sync"

	"github.com/aretw0/leadflow/pkg/domain"
)

type entry struct {
	session *domain.Session
	seq     uint64
}

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]entry
	seq  uint64
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]entry),
	}
}

// Create persists a new session with version 1.
func (s *Store) Create(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[sess.ID]; ok {
		return domain.ErrSessionExists
	}
	sess.Version = 1
	s.seq++
	// State is immutable, so a shallow copy isolates the stored record.
	s.data[sess.ID] = entry{session: sess.Clone(), seq: s.seq}
	return nil
}

// Get retrieves a copy of the session.
func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

// FindByVisitor returns the first session created for the visitor/origin pair.
func (s *Store) FindByVisitor(ctx context.Context, visitorRef, originRef string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *entry
	for _, e := range s.data {
		if e.session.VisitorRef != visitorRef || e.session.OriginRef != originRef {
			continue
		}
		if found == nil || e.seq < found.seq {
			found = &e
		}
	}
	if found == nil {
		return nil, domain.ErrSessionNotFound
	}
	return found.session.Clone(), nil
}

// Update replaces the session when the stored version matches.
func (s *Store) Update(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[sess.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if e.session.Version != sess.Version {
		return domain.ErrVersionConflict
	}
	sess.Version++
	e.session = sess.Clone()
	s.data[sess.ID] = e
	return nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
