package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iconidentify/mediagrab/internal/domain"
)

type sessionEntry struct {
	sel       domain.Selection
	expiresAt time.Time
}

// InMemorySessionStore implements SessionStore in process memory.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]sessionEntry
	now      func() time.Time
}

// NewInMemorySessionStore creates an empty session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]sessionEntry),
		now:      time.Now,
	}
}

// Put stores sel under token for ttl.
func (s *InMemorySessionStore) Put(ctx context.Context, token string, sel *domain.Selection, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[token] = sessionEntry{sel: *sel, expiresAt: s.now().Add(ttl)}
	return nil
}

// Take returns and deletes the selection for token.
func (s *InMemorySessionStore) Take(ctx context.Context, token string) (*domain.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	delete(s.sessions, token)
	if !s.now().Before(entry.expiresAt) {
		return nil, domain.ErrSessionNotFound
	}
	sel := entry.sel
	return &sel, nil
}

// Sweep drops expired entries.
func (s *InMemorySessionStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, entry := range s.sessions {
		if !now.Before(entry.expiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *InMemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Ping always succeeds.
func (s *InMemorySessionStore) Ping(ctx context.Context) error {
	return nil
}
