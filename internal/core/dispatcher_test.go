package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restobook/realtime-server/internal/store"
)

func TestDispatcherToStaffCountsSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "a", store.RoleEmployee)
	env.user(t, "b", store.RoleEmployee)
	env.user(t, "boss", store.RoleAdmin)
	env.user(t, "cust", store.RoleUser)

	env.connect(t, "a", "m1")
	env.connect(t, "a", "m2")
	env.connect(t, "b", "m3")
	boss := env.connect(t, "boss", "m4")
	cust := env.connect(t, "cust", "m5")

	n := env.hub.Dispatcher.ToStaff(ctx, &Event{Kind: EventNewMessage, Message: &store.Message{Text: "x"}})
	assert.Equal(t, 4, n)
	mustEvent(t, boss.Events, EventNewMessage)
	noEvent(t, cust)
}

func TestDispatcherSkipsUnknownIdentities(t *testing.T) {
	env := newTestEnv(t)
	env.hub.Users.AddSession("ghost", "m1")
	s := NewSession("m1", NamespaceMain, 4)
	env.hub.Sessions.Attach(s)

	n := env.hub.Dispatcher.ToStaff(context.Background(), &Event{Kind: EventNewMessage})
	assert.Zero(t, n)
	noEvent(t, s)
}

func TestDispatcherToGuestOffline(t *testing.T) {
	env := newTestEnv(t)
	assert.False(t, env.hub.Dispatcher.ToGuest("nobody", &Event{Kind: EventNewMessage}))
}

func TestDispatcherStaleRegistryEntry(t *testing.T) {
	env := newTestEnv(t)
	// Registered in presence but already gone from the session table.
	env.hub.Users.AddSession("u1", "gone")
	assert.Zero(t, env.hub.Dispatcher.ToUser("u1", &Event{Kind: EventNewMessage}))
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	env := newTestEnv(t)
	s := NewSession("m1", NamespaceMain, 1)
	env.hub.Sessions.Attach(s)
	env.hub.Users.AddSession("u1", s.ID)

	assert.Equal(t, 1, env.hub.Dispatcher.ToUser("u1", &Event{Kind: EventNewMessage}))
	assert.Equal(t, 0, env.hub.Dispatcher.ToUser("u1", &Event{Kind: EventNewMessage}))
	assert.False(t, env.hub.Dispatcher.Reply(s, &Event{Kind: EventMessageSent}))

	mustEvent(t, s.Events, EventNewMessage)
	noEvent(t, s)
}

func TestDispatcherClosedSession(t *testing.T) {
	env := newTestEnv(t)
	s := NewSession("m1", NamespaceMain, 4)
	env.hub.Sessions.Attach(s)
	env.hub.Users.AddSession("u1", s.ID)
	s.Close()

	assert.Zero(t, env.hub.Dispatcher.ToUser("u1", &Event{Kind: EventNewMessage}))
}

func TestConcurrentConnectSendDisconnect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "emp", store.RoleEmployee)
	emp := env.connect(t, "emp", "emp-1")

	const customers = 8
	for i := 0; i < customers; i++ {
		env.user(t, fmt.Sprintf("c%d", i), store.RoleUser)
	}

	var wg sync.WaitGroup
	for i := 0; i < customers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("c%d", i)
			u, err := env.hub.Main.Authenticate(ctx, "tok-"+name)
			if err != nil {
				t.Errorf("authenticate %s: %v", name, err)
				return
			}
			s := NewSession("sess-"+name, NamespaceMain, 8)
			env.hub.Main.Connect(s, u)
			env.hub.Main.Handle(ctx, s, &Command{Kind: CommandSendFromUser, Text: "hi from " + name})
			env.hub.Main.Disconnect(s)
		}(i)
	}
	wg.Wait()

	received := 0
	for {
		select {
		case ev := <-emp.Events:
			require.Equal(t, EventNewMessage, ev.Kind)
			received++
			continue
		default:
		}
		break
	}
	// emp-1 has a 16-slot queue, enough for every push.
	assert.Equal(t, customers, received)
	assert.Equal(t, Stats{Sessions: 1, Users: 1}, env.hub.Stats())
}
