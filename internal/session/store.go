package session

import (
	"context"
	"sync"
	"time"
)

// Store persists tickets server-side, keyed by session ID. Stores let a
// deployment revoke sessions without waiting for cookie expiry.
type Store interface {
	// Save persists a ticket until its expiry.
	Save(ctx context.Context, t *Ticket) error

	// Load retrieves a live ticket. Unknown and expired sessions both
	// return ErrSessionNotFound.
	Load(ctx context.Context, id string) (*Ticket, error)

	// Delete revokes a session. Deleting an unknown session is a no-op.
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process Store. Expired tickets are dropped lazily
// on Load and in bulk via Purge.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]*Ticket
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]*Ticket)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, id string) (*Ticket, error) {
	s.mu.RLock()
	t, ok := s.tickets[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if t.Expired(time.Now()) {
		s.mu.Lock()
		delete(s.tickets, id)
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return t, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, id)
	return nil
}

// Purge drops every expired ticket and returns how many were removed.
func (s *MemoryStore) Purge() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, t := range s.tickets {
		if t.Expired(now) {
			delete(s.tickets, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of stored tickets, expired ones included.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets)
}
