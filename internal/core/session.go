package core

import (
	"sync"

	"github.com/restobook/realtime-server/internal/store"
)

// Namespace separates authenticated and anonymous connections.
type Namespace string

const (
	NamespaceMain  Namespace = "main"
	NamespaceGuest Namespace = "guest"
)

const defaultEventBuffer = 32

// Session is one live transport connection as seen by the core layer.
type Session struct {
	ID        string
	Namespace Namespace

	// UserID and Role are set for authenticated main-namespace sessions.
	UserID string
	Role   store.Role

	Events chan *Event

	mu     sync.Mutex
	closed bool
}

// NewSession constructs a session with an initialized event queue.
func NewSession(id string, ns Namespace, buffer int) *Session {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Session{
		ID:        id,
		Namespace: ns,
		Events:    make(chan *Event, buffer),
	}
}

// Emit queues an event without blocking. It reports false when the
// event was dropped because the session is closed or its queue is full.
func (s *Session) Emit(ev *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.Events <- ev:
		return true
	default:
		// Drop if slow consumer.
		return false
	}
}

// Close stops further delivery and closes the event queue. Safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.Events)
}
