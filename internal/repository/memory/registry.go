// Package memory holds the process-local session cache and identity index.
package memory

import (
	"sync"

	"github.com/Rrens/omnichannel-session/internal/domain"
)

// Registry is the process-local session cache keyed by session token.
// Every read returns a copy; writes go through Put or Update.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	byID     map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*domain.Session),
		byID:     make(map[string]string),
	}
}

// Get returns a copy of the session for token
func (r *Registry) Get(token string) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Put stores a copy of s under its token
func (r *Registry) Put(s *domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.SessionToken] = s.Clone()
	if s.SessionID != "" {
		r.byID[s.SessionID] = s.SessionToken
	}
}

// Update applies fn to the session for token under the registry lock.
// When fn fails the cached session is left untouched.
func (r *Registry) Update(token string, fn func(*domain.Session) error) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	r.sessions[token] = working
	if working.SessionID != "" {
		r.byID[working.SessionID] = token
	}
	return working.Clone(), nil
}

// FindBySessionID returns the most recently stored session carrying sessionID
func (r *Registry) FindBySessionID(sessionID string) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.byID[sessionID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[token]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Len returns the number of cached sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
