package core

import (
	"slices"
	"sync"
)

// UserPresence tracks which authenticated identities are reachable and
// through which sessions. One identity may hold many sessions.
type UserPresence interface {
	AddSession(userID, sessionID string)
	RemoveSession(userID, sessionID string)
	SessionsFor(userID string) []string
	AllIdentities() []string
}

// GuestPresence maps a visitor id to its single current session.
// A later bind for the same visitor replaces the earlier one.
type GuestPresence interface {
	Bind(visitorID, sessionID string)
	SessionFor(visitorID string) (string, bool)
	UnbindSession(sessionID string) []string
	AllVisitors() []string
}

// UserRegistry is the in-memory UserPresence.
type UserRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]struct{}
}

// NewUserRegistry creates an empty registry.
func NewUserRegistry() *UserRegistry {
	return &UserRegistry{sessions: make(map[string]map[string]struct{})}
}

// AddSession records sessionID for userID. Adding the same pair twice is a no-op.
func (r *UserRegistry) AddSession(userID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[string]struct{})
		r.sessions[userID] = set
	}
	set[sessionID] = struct{}{}
}

// RemoveSession drops sessionID and forgets userID once its last session is gone.
func (r *UserRegistry) RemoveSession(userID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[userID]
	if !ok {
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(r.sessions, userID)
	}
}

// SessionsFor returns a copy of the user's session ids, sorted.
func (r *UserRegistry) SessionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.sessions[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// AllIdentities returns a sorted snapshot of present user ids.
func (r *UserRegistry) AllIdentities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// GuestRegistry is the in-memory GuestPresence.
type GuestRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string
}

// NewGuestRegistry creates an empty registry.
func NewGuestRegistry() *GuestRegistry {
	return &GuestRegistry{sessions: make(map[string]string)}
}

// Bind points visitorID at sessionID, silently replacing any previous session.
func (r *GuestRegistry) Bind(visitorID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[visitorID] = sessionID
}

// SessionFor returns the visitor's current session.
func (r *GuestRegistry) SessionFor(visitorID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.sessions[visitorID]
	return id, ok
}

// UnbindSession removes every visitor currently bound to sessionID and
// returns the removed visitor ids. A visitor already rebound to a newer
// session is left alone.
func (r *GuestRegistry) UnbindSession(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for visitorID, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, visitorID)
			removed = append(removed, visitorID)
		}
	}
	slices.Sort(removed)
	return removed
}

// AllVisitors returns a sorted snapshot of present visitor ids.
func (r *GuestRegistry) AllVisitors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
