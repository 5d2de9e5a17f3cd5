package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restobook/realtime-server/internal/store"
)

func TestAuthenticateRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sus := env.user(t, "sus", store.RoleEmployee)
	require.NoError(t, env.store.SetUserSuspended(ctx, sus.ID, true))
	env.tokens["tok-ghost"] = "no-such-user"

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "", ErrNoToken},
		{"garbage", "not-a-token", ErrInvalidToken},
		{"unknown user", "tok-ghost", ErrUnauthorized},
		{"suspended", "tok-sus", ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := env.hub.Main.Authenticate(ctx, tc.token)
			assert.Nil(t, u)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	assert.Equal(t, 0, env.hub.Sessions.Len())
}

func TestConnectAndOnlineUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	emp := env.user(t, "emp", store.RoleEmployee)

	u, err := env.hub.Main.Authenticate(ctx, "tok-emp")
	require.NoError(t, err)

	s := NewSession("m1", NamespaceMain, 8)
	env.hub.Main.Connect(s, u)

	ev := mustEvent(t, s.Events, EventConnected)
	assert.Equal(t, emp.ID, ev.UserID)
	assert.Equal(t, store.RoleEmployee, ev.Role)

	env.hub.Main.Handle(ctx, s, &Command{Kind: CommandGetOnlineUsers})
	ev = mustEvent(t, s.Events, EventOnlineUsers)
	assert.Equal(t, []OnlineUser{{ID: emp.ID, Role: store.RoleEmployee}}, ev.Online)
}

func TestSendFromUserRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := env.user(t, "cust", store.RoleUser)
	env.user(t, "emp", store.RoleEmployee)

	c := env.connect(t, "cust", "m1")
	e := env.connect(t, "emp", "m2")

	env.hub.Main.Handle(ctx, c, &Command{Kind: CommandSendFromUser, Text: "hi"})

	sent := mustEvent(t, c.Events, EventMessageSent)
	assert.Equal(t, "hi", sent.Message.Text)
	assert.Equal(t, store.SenderUser, sent.Message.SenderType)
	require.NotNil(t, sent.Message.UserID)
	assert.Equal(t, cust.ID, *sent.Message.UserID)
	noEvent(t, c)

	pushed := mustEvent(t, e.Events, EventNewMessage)
	assert.Equal(t, sent.Message.ID, pushed.Message.ID)

	msgs, err := env.store.ListUserMessages(ctx, cust.ID, 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.SenderUser, msgs[0].SenderType)
}

func TestSendFromEmployeeUnknownVisitor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	emp := env.user(t, "emp", store.RoleEmployee)
	e := env.connect(t, "emp", "m1")

	env.hub.Main.Handle(ctx, e, &Command{Kind: CommandSendFromEmployee, VisitorID: "unknown-id", Text: "x"})

	ev := mustEvent(t, e.Events, EventError)
	assert.Equal(t, ErrCodeRecipientNotFound, ev.Error.Code)
	noEvent(t, e)

	msgs, err := env.store.ListUserMessages(ctx, emp.ID, 10, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSendToOfflineUserIsStoredAndAcked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "a", store.RoleEmployee)
	env.user(t, "b", store.RoleEmployee)

	a := env.connect(t, "a", "m1")
	b := env.connect(t, "b", "m2")
	g := env.guest(t, "vz", "g1")

	env.hub.Main.Handle(ctx, a, &Command{Kind: CommandSendFromEmployeeToUser, UserID: "u1", Text: "t"})

	sent := mustEvent(t, a.Events, EventMessageSent)
	assert.Equal(t, store.SenderEmployee, sent.Message.SenderType)
	noEvent(t, a)
	noEvent(t, b)
	noEvent(t, g)

	msgs, err := env.store.ListUserMessages(ctx, "u1", 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "t", msgs[0].Text)
}

func TestSendToOnlineUserReachesAllSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "emp", store.RoleEmployee)
	cust := env.user(t, "cust", store.RoleUser)

	e := env.connect(t, "emp", "m1")
	phone := env.connect(t, "cust", "m2")
	laptop := env.connect(t, "cust", "m3")

	env.hub.Main.Handle(ctx, e, &Command{Kind: CommandSendFromEmployeeToUser, UserID: cust.ID, Text: "your table is ready"})

	mustEvent(t, e.Events, EventMessageSent)
	assert.Equal(t, "your table is ready", mustEvent(t, phone.Events, EventNewMessage).Message.Text)
	assert.Equal(t, "your table is ready", mustEvent(t, laptop.Events, EventNewMessage).Message.Text)
}

func TestEmployeeReplyFansOutToStaffAndGuest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest, err := env.store.EnsureGuest(ctx, "vx", "")
	require.NoError(t, err)

	empA := env.user(t, "a", store.RoleEmployee)
	env.user(t, "b", store.RoleEmployee)
	env.user(t, "cust", store.RoleUser)

	a := env.connect(t, "a", "m1")
	b := env.connect(t, "b", "m2")
	c := env.connect(t, "cust", "m3")
	g := env.guest(t, "vx", "g1")

	env.hub.Main.Handle(ctx, a, &Command{Kind: CommandSendFromEmployee, VisitorID: "vx", Text: "hello"})

	toGuest := mustEvent(t, g.Events, EventNewMessage)
	assert.Equal(t, "hello", toGuest.Message.Text)
	require.NotNil(t, toGuest.Message.GuestID)
	assert.Equal(t, guest.ID, *toGuest.Message.GuestID)
	require.NotNil(t, toGuest.Message.UserID)
	assert.Equal(t, empA.ID, *toGuest.Message.UserID)

	mustEvent(t, a.Events, EventNewEmployeeMessage)
	mustEvent(t, a.Events, EventMessageSent)
	mustEvent(t, b.Events, EventNewEmployeeMessage)
	noEvent(t, b)
	noEvent(t, c)
}

func TestRoleFanOutUsesFreshRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "cust", store.RoleUser)
	gone := env.user(t, "gone", store.RoleEmployee)
	env.user(t, "stays", store.RoleEmployee)

	c := env.connect(t, "cust", "m1")
	g := env.connect(t, "gone", "m2")
	s := env.connect(t, "stays", "m3")

	// Suspension after connect must take effect on the next send.
	require.NoError(t, env.store.SetUserSuspended(ctx, gone.ID, true))

	env.hub.Main.Handle(ctx, c, &Command{Kind: CommandSendFromUser, Text: "anyone there?"})

	mustEvent(t, s.Events, EventNewMessage)
	noEvent(t, g)
}

func TestEmployeeOnlyCommandsRejectCustomers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "cust", store.RoleUser)
	c := env.connect(t, "cust", "m1")

	env.hub.Main.Handle(ctx, c, &Command{Kind: CommandSendFromEmployeeToUser, UserID: "u2", Text: "spoof"})

	ev := mustEvent(t, c.Events, EventError)
	assert.Equal(t, ErrCodeForbidden, ev.Error.Code)
}

func TestPersistFailureReportedToSenderOnly(t *testing.T) {
	env := newTestEnvWith(t, failingWriter{})
	ctx := context.Background()
	env.user(t, "cust", store.RoleUser)
	env.user(t, "emp", store.RoleEmployee)

	c := env.connect(t, "cust", "m1")
	e := env.connect(t, "emp", "m2")

	env.hub.Main.Handle(ctx, c, &Command{Kind: CommandSendFromUser, Text: "hi"})

	ev := mustEvent(t, c.Events, EventError)
	assert.Equal(t, ErrCodePersistFailed, ev.Error.Code)
	noEvent(t, e)

	env.hub.Main.Handle(ctx, e, &Command{Kind: CommandSendNotification, Notification: NotificationRequest{
		RecipientType: store.RecipientUser, Recipient: "x", Type: "promo", Content: "c",
	}})
	ev = mustEvent(t, e.Events, EventError)
	assert.Equal(t, ErrCodePersistFailed, ev.Error.Code)
	noEvent(t, c)
}

func TestNotificationToGuestCrossesNamespace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	emp := env.user(t, "emp", store.RoleEmployee)
	e := env.connect(t, "emp", "m1")
	g := env.guest(t, "vx", "g1")

	env.hub.Main.Handle(ctx, e, &Command{Kind: CommandSendNotification, Notification: NotificationRequest{
		RecipientType: store.RecipientGuest, Recipient: "vx", Type: "promo", Content: "c",
	}})

	ev := mustEvent(t, g.Events, EventNotification)
	assert.Equal(t, "promo", ev.Notification.Type)
	assert.Equal(t, "c", ev.Notification.Content)
	noEvent(t, e)

	stored, err := env.store.ListNotifications(ctx, store.RecipientGuest, "vx", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, emp.ID, stored[0].SenderID)
}

func TestNotificationToOfflineUserStillPersisted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "emp", store.RoleEmployee)
	cust := env.user(t, "cust", store.RoleUser)
	e := env.connect(t, "emp", "m1")

	res := env.hub.Main.SendNotification(ctx, e, NotificationRequest{
		RecipientType: store.RecipientUser, Recipient: cust.ID, Type: "booking", Content: "confirmed", Link: "/bookings/1",
	})
	require.True(t, res.OK())

	stored, err := env.store.ListNotifications(ctx, store.RecipientUser, cust.ID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "/bookings/1", stored[0].Link)

	c := env.connect(t, "cust", "m2")
	env.hub.Main.Handle(ctx, e, &Command{Kind: CommandSendNotification, Notification: NotificationRequest{
		RecipientType: store.RecipientUser, Recipient: cust.ID, Type: "booking", Content: "seated",
	}})
	assert.Equal(t, "seated", mustEvent(t, c.Events, EventNotification).Notification.Content)
}

func TestNotificationValidation(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "emp", store.RoleEmployee)
	e := env.connect(t, "emp", "m1")

	res := env.hub.Main.SendNotification(context.Background(), e, NotificationRequest{RecipientType: "table", Recipient: "x", Type: "t", Content: "c"})
	require.False(t, res.OK())
	assert.Equal(t, ErrCodeBadRequest, res.Err.Code)
}

func TestDisconnectRemovesPresence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "cust", store.RoleUser)

	first := env.connect(t, "cust", "m1")
	second := env.connect(t, "cust", "m2")

	env.hub.Main.Disconnect(first)
	assert.Equal(t, []string{"m2"}, env.hub.Users.SessionsFor(u.ID))

	env.hub.Main.Disconnect(second)
	assert.Empty(t, env.hub.Users.AllIdentities())
	assert.Empty(t, env.hub.Main.OnlineUsers(ctx))
	assert.Equal(t, Stats{}, env.hub.Stats())
}

func TestHubRunClosesSessionsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "cust", store.RoleUser)
	s := env.connect(t, "cust", "m1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	_, open := <-s.Events
	assert.False(t, open)
}

func TestAdminIsPartOfStaffFanOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.store.EnsureGuest(ctx, "vx", "")
	require.NoError(t, err)

	env.user(t, "boss", store.RoleAdmin)
	env.user(t, "cust", store.RoleUser)

	a := env.connect(t, "boss", "m1")
	c := env.connect(t, "cust", "m2")
	g := env.guest(t, "vx", "g1")

	env.hub.Main.Handle(ctx, a, &Command{Kind: CommandSendFromEmployee, VisitorID: "vx", Text: "welcome"})

	mustEvent(t, a.Events, EventNewEmployeeMessage)
	mustEvent(t, a.Events, EventMessageSent)
	mustEvent(t, g.Events, EventNewMessage)
	noEvent(t, c)

	env.hub.Main.Handle(ctx, c, &Command{Kind: CommandSendFromUser, Text: "table for two?"})

	mustEvent(t, c.Events, EventMessageSent)
	ev := mustEvent(t, a.Events, EventNewMessage)
	assert.Equal(t, "table for two?", ev.Message.Text)
}

func TestSuspendedSenderIsRejectedMidConnection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cust := env.user(t, "cust", store.RoleUser)
	env.user(t, "emp", store.RoleEmployee)

	c := env.connect(t, "cust", "m1")
	e := env.connect(t, "emp", "m2")

	require.NoError(t, env.store.SetUserSuspended(ctx, cust.ID, true))

	env.hub.Main.Handle(ctx, c, &Command{Kind: CommandSendFromUser, Text: "still here"})
	ev := mustEvent(t, c.Events, EventError)
	assert.Equal(t, ErrCodeUnauthorized, ev.Error.Code)

	env.hub.Main.Handle(ctx, c, &Command{Kind: CommandSendNotification, Notification: NotificationRequest{
		RecipientType: store.RecipientGuest, Recipient: "vx", Type: "promo", Content: "c",
	}})
	ev = mustEvent(t, c.Events, EventError)
	assert.Equal(t, ErrCodeUnauthorized, ev.Error.Code)

	noEvent(t, e)
	msgs, err := env.store.ListUserMessages(ctx, cust.ID, 10, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
	notes, err := env.store.ListNotifications(ctx, store.RecipientGuest, "vx", 10)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestConnectRefusedAfterHubStops(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "cust", store.RoleUser)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env.hub.Run(ctx)

	s := NewSession("late", NamespaceMain, 4)
	assert.False(t, env.hub.Main.Connect(s, u))
	_, open := <-s.Events
	assert.False(t, open)

	g := NewSession("late-guest", NamespaceGuest, 4)
	assert.False(t, env.hub.Guest.Connect(g))

	assert.Zero(t, env.hub.Sessions.Len())
	assert.Empty(t, env.hub.Users.AllIdentities())
}
