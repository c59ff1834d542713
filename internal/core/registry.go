package core

import (
	"sort"
	"sync"
)

// Registry maps a user to at most one live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Register stores s as the current session of userID. A previous session for
// the same user is superseded and returned; it is not closed. cameOnline is
// true only for an absent -> present transition.
func (r *Registry) Register(userID int64, s *Session) (superseded *Session, cameOnline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.sessions[userID]
	r.sessions[userID] = s
	if existed && prev != s {
		superseded = prev
	}
	return superseded, !existed
}

// Unregister removes s if, and only if, it is still the current session of
// its user. A stale handle is a no-op.
func (r *Registry) Unregister(s *Session) (int64, bool) {
	if s == nil {
		return 0, false
	}
	userID := s.UserID()
	if userID == 0 {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[userID]; !ok || current != s {
		return 0, false
	}
	delete(r.sessions, userID)
	return userID, true
}

// Lookup returns the live session of userID.
func (r *Registry) Lookup(userID int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// IsOnline reports whether userID has a live session.
func (r *Registry) IsOnline(userID int64) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// ListOnline returns a sorted snapshot of the connected user ids.
func (r *Registry) ListOnline() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sessions returns a snapshot of the live sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
