package session

import (
	"errors"
	"sync"
)

var (
	// ErrSessionNotFound is returned for ids that are unknown or already removed.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when inserting an id that is already registered.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionClosed is returned when a session ends while waiting for it.
	ErrSessionClosed = errors.New("session closed")
)

// Registry maps session ids to live sessions. Lookups share a read lock, so
// submits to different sessions never wait on each other.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Insert registers s under its id.
func (r *Registry) Insert(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.id]; ok {
		return ErrSessionExists
	}
	r.sessions[s.id] = s
	return nil
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove deletes id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Range calls fn for a snapshot of the registered sessions. fn runs without
// the registry lock held, so it may call back into the registry.
func (r *Registry) Range(fn func(*Session) bool) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}
