package core

import "sync"

// SessionTable resolves session ids to live sessions across both namespaces.
type SessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewSessionTable creates an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[string]*Session)}
}

// Attach registers a session under its id. It reports false once the
// table has been closed.
func (t *SessionTable) Attach(s *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.sessions[s.ID] = s
	return true
}

// CloseAll closes every live session and refuses further attaches.
// Returns the number of sessions closed.
func (t *SessionTable) CloseAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for _, s := range t.sessions {
		s.Close()
	}
	return len(t.sessions)
}

// Detach forgets a session. Returns false if it was unknown.
func (t *SessionTable) Detach(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sessions[id]; !ok {
		return false
	}
	delete(t.sessions, id)
	return true
}

// Get returns the live session for id.
func (t *SessionTable) Get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[id]
	return s, ok
}

// Len reports the number of live sessions.
func (t *SessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.sessions)
}
