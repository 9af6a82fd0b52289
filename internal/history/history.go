// Package history keeps per-session conversation turns.
//
// A Store is an explicitly owned registry: sessions are created lazily on
// first access and are never evicted for the lifetime of the Store.
package history

import (
	"context"
	"slices"
	"sync"
)

// History is the append-only turn sequence of one session.
type History struct {
	sessionID string
	log       Log

	// round is a one-slot semaphore serializing conversation rounds; reads
	// and appends have their own locking inside the Log.
	round chan struct{}
}

// SessionID returns the session this history belongs to.
func (h *History) SessionID() string {
	return h.sessionID
}

// Turns returns a copy of the turns in append order.
func (h *History) Turns() ([]Turn, error) {
	return h.log.Turns()
}

// Append adds turns atomically: either all are recorded or none.
func (h *History) Append(turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	if err := validate(turns); err != nil {
		return err
	}
	return h.log.Append(turns)
}

// Lock acquires exclusive use of the session for one read-call-append round.
// It gives up with ctx.Err() if ctx ends while another round holds the session.
func (h *History) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case h.round <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the round lock taken by a successful Lock.
func (h *History) Unlock() { <-h.round }

// Store maps session ids to their History.
type Store struct {
	mu       sync.RWMutex
	backend  Backend
	sessions map[string]*History
}

// NewStore creates an empty store over backend. A nil backend means in-memory.
func NewStore(backend Backend) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &Store{
		backend:  backend,
		sessions: make(map[string]*History),
	}
}

// GetOrCreate returns the History for sessionID, creating an empty one on
// first use. Every call with the same id returns the same *History.
func (s *Store) GetOrCreate(sessionID string) *History {
	s.mu.RLock()
	h, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.sessions[sessionID]; ok {
		return h
	}
	h = &History{
		sessionID: sessionID,
		log:       s.backend.Open(sessionID),
		round:     make(chan struct{}, 1),
	}
	s.sessions[sessionID] = h
	return h
}

// Lookup returns the History for sessionID without creating it.
func (s *Store) Lookup(sessionID string) (*History, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.sessions[sessionID]
	return h, ok
}

// Sessions lists known session ids in lexical order.
func (s *Store) Sessions() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
