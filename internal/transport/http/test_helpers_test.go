package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/restobook/realtime-server/internal/auth"
	"github.com/restobook/realtime-server/internal/config"
	"github.com/restobook/realtime-server/internal/core"
	"github.com/restobook/realtime-server/internal/proto"
	"github.com/restobook/realtime-server/internal/store"
	"github.com/restobook/realtime-server/internal/store/sqlite"
)

const testSecret = "test-secret"

// createTestStore creates an in-memory SQLite store with migrations applied.
func createTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.UserStore) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}

type testServer struct {
	ts    *httptest.Server
	hub   *core.Hub
	store *sqlite.SQLiteStore
	auth  *auth.Service
}

func startTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	return startTestServerWithWriter(t, nil, mutate...)
}

// startTestServerWithWriter swaps message persistence when messages is non-nil.
func startTestServerWithWriter(t *testing.T, messages core.MessageWriter, mutate ...func(*config.Config)) *testServer {
	t.Helper()

	st := createTestStore(t)
	authService := createTestAuthService(t, st)

	deps := core.HubDeps{
		Directory:     st,
		Messages:      st,
		Notifications: st,
		Verifier:      authService,
	}
	if messages != nil {
		deps.Messages = messages
	}

	disabledLogger := zerolog.New(nil)
	hub := core.NewHub(deps, &disabledLogger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testSecret
	cfg.AllowedOrigins = nil
	cfg.PingInterval = 0
	for _, m := range mutate {
		m(&cfg)
	}

	server := NewServer(hub, authService, st, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, hub: hub, store: st, auth: authService}
}

// register creates a user and returns it together with a bearer token.
func (s *testServer) register(t *testing.T, name string, role store.Role) (*store.User, string) {
	t.Helper()

	u, err := s.auth.Register(context.Background(), name, name+"@example.com", "password123", role)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	token, err := s.auth.IssueToken(u)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return u, token
}

func (s *testServer) wsURL(path string) string {
	return strings.Replace(s.ts.URL, "http", "ws", 1) + path
}

// dialMain connects to the main namespace and consumes the connected event.
func (s *testServer) dialMain(ctx context.Context, t *testing.T, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, s.wsURL("/ws?token="+token), nil)
	if err != nil {
		t.Fatalf("dial main: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	readEvent(ctx, t, conn, proto.EventConnected)
	return conn
}

func (s *testServer) dialGuest(ctx context.Context, t *testing.T, visitorID string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, s.wsURL("/ws/guest"), nil)
	if err != nil {
		t.Fatalf("dial guest: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	if visitorID != "" {
		send(ctx, t, conn, proto.EventGuestOnline, visitorID)
		waitFor(t, func() bool {
			_, ok := s.hub.Guests.SessionFor(visitorID)
			return ok
		})
	}
	return conn
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", event, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Envelope{Event: event, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", event, err)
	}
}

// readEvent reads frames until one named event arrives and returns its payload.
func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()

	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env.Data
		}
	}
}

// expectSilence asserts no frame arrives within a short window. The timed-out
// read closes conn, so call it last.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var env proto.Envelope
	if err := wsjson.Read(ctx, conn, &env); err == nil {
		t.Fatalf("unexpected frame %s: %s", env.Event, env.Data)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
