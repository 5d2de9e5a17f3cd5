package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/restobook/realtime-server/internal/store"
	"github.com/restobook/realtime-server/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent asserts the queue is empty. Core handlers emit synchronously,
// so anything that was going to arrive is already queued.
func noEvent(t *testing.T, s *Session) {
	t.Helper()

	select {
	case ev := <-s.Events:
		t.Fatalf("unexpected event on %s: %v %+v", s.ID, ev.Kind, ev)
	default:
	}
}

// tokenTable maps bearer tokens to user ids.
type tokenTable map[string]string

func (tt tokenTable) VerifyToken(token string) (string, error) {
	id, ok := tt[token]
	if !ok {
		return "", errors.New("bad signature")
	}
	return id, nil
}

type failingWriter struct{}

func (failingWriter) SaveMessage(context.Context, *store.Message) error {
	return errors.New("disk full")
}

func (failingWriter) SaveNotification(context.Context, *store.Notification) error {
	return errors.New("disk full")
}

type testEnv struct {
	hub    *Hub
	store  *sqlite.SQLiteStore
	tokens tokenTable
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith swaps message and notification persistence when writer is non-nil.
func newTestEnvWith(t *testing.T, writer interface {
	MessageWriter
	NotificationWriter
}) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tokens := tokenTable{}
	deps := HubDeps{
		Directory:     st,
		Messages:      st,
		Notifications: st,
		Verifier:      tokens,
	}
	if writer != nil {
		deps.Messages = writer
		deps.Notifications = writer
	}

	return &testEnv{hub: NewHub(deps, nil), store: st, tokens: tokens}
}

// user creates a user record and a token for it.
func (e *testEnv) user(t *testing.T, name string, role store.Role) *store.User {
	t.Helper()

	u, err := e.store.CreateUser(context.Background(), name, name+"@example.com", "hash", role)
	require.NoError(t, err)
	e.tokens["tok-"+name] = u.ID
	return u
}

// connect authenticates with the user's token and returns a live main session.
func (e *testEnv) connect(t *testing.T, name, sessionID string) *Session {
	t.Helper()

	u, err := e.hub.Main.Authenticate(context.Background(), "tok-"+name)
	require.NoError(t, err)

	s := NewSession(sessionID, NamespaceMain, 16)
	e.hub.Main.Connect(s, u)
	mustEvent(t, s.Events, EventConnected)
	return s
}

func (e *testEnv) guest(t *testing.T, visitorID, sessionID string) *Session {
	t.Helper()

	s := NewSession(sessionID, NamespaceGuest, 16)
	e.hub.Guest.Connect(s)
	e.hub.Guest.Handle(context.Background(), s, &Command{Kind: CommandGuestOnline, VisitorID: visitorID})
	return s
}
