package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/restobook/realtime-server/internal/store"
)

// MainChannel serves authenticated users and staff.
type MainChannel struct {
	sessions      *SessionTable
	users         UserPresence
	directory     Directory
	messages      MessageWriter
	notifications NotificationWriter
	verifier      TokenVerifier
	dispatcher    *Dispatcher
	log           *zerolog.Logger
}

// MainDeps groups the collaborators of the main namespace.
type MainDeps struct {
	Directory     Directory
	Messages      MessageWriter
	Notifications NotificationWriter
	Verifier      TokenVerifier
}

// NewMainChannel builds the authenticated namespace handler.
func NewMainChannel(sessions *SessionTable, users UserPresence, deps MainDeps, dispatcher *Dispatcher, logger *zerolog.Logger) *MainChannel {
	return &MainChannel{
		sessions:      sessions,
		users:         users,
		directory:     deps.Directory,
		messages:      deps.Messages,
		notifications: deps.Notifications,
		verifier:      deps.Verifier,
		dispatcher:    dispatcher,
		log:           logger,
	}
}

// Authenticate resolves a bearer credential to an active user.
// It runs before any session exists; the returned error is one of
// ErrNoToken, ErrInvalidToken or ErrUnauthorized (possibly wrapped).
func (m *MainChannel) Authenticate(ctx context.Context, token string) (*store.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}

	userID, err := m.verifier.VerifyToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user, err := m.directory.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.log.Error().Err(err).Str("user_id", userID).Msg("identity lookup failed")
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if user.IsSuspended {
		return nil, fmt.Errorf("%w: user suspended", ErrUnauthorized)
	}

	return user, nil
}

// Connect binds the session to the user, registers presence and
// acknowledges with a connected event. It reports false, with the session
// closed, when the hub has stopped.
func (m *MainChannel) Connect(s *Session, user *store.User) bool {
	s.UserID = user.ID
	s.Role = user.Role

	if !m.sessions.Attach(s) {
		s.Close()
		return false
	}
	m.users.AddSession(user.ID, s.ID)

	m.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Str("session_id", s.ID).Msg("user connected")
	m.dispatcher.Reply(s, &Event{Kind: EventConnected, UserID: user.ID, Role: user.Role})
	return true
}

// Handle executes one inbound command for the session.
func (m *MainChannel) Handle(ctx context.Context, s *Session, cmd *Command) {
	switch cmd.Kind {
	case CommandGetOnlineUsers:
		m.dispatcher.Reply(s, &Event{Kind: EventOnlineUsers, Online: m.OnlineUsers(ctx)})
	case CommandSendFromEmployee:
		m.replySend(s, m.SendToGuest(ctx, s, cmd.VisitorID, cmd.Text))
	case CommandSendFromUser:
		m.replySend(s, m.SendToStaff(ctx, s, cmd.Text))
	case CommandSendFromEmployeeToUser:
		m.replySend(s, m.SendToUser(ctx, s, cmd.UserID, cmd.Text))
	case CommandSendNotification:
		if res := m.SendNotification(ctx, s, cmd.Notification); !res.OK() {
			m.dispatcher.Reply(s, errorEvent(res.Err))
		}
	default:
		m.dispatcher.Reply(s, errorEvent(coreError(ErrCodeUnknownEvent, "unknown event")))
	}
}

// OnlineUsers snapshots present identities. Roles are looked up per call and
// left empty when the lookup fails.
func (m *MainChannel) OnlineUsers(ctx context.Context) []OnlineUser {
	ids := m.users.AllIdentities()
	out := make([]OnlineUser, 0, len(ids))
	for _, id := range ids {
		entry := OnlineUser{ID: id}
		if user, err := m.directory.GetUserByID(ctx, id); err == nil {
			entry.Role = user.Role
		}
		out = append(out, entry)
	}
	return out
}

// SendToGuest persists a staff reply to a guest and pushes it to all online
// staff and to the guest's current session.
func (m *MainChannel) SendToGuest(ctx context.Context, s *Session, visitorID, text string) SendResult {
	if err := m.requireStaff(ctx, s); err != nil {
		return failed(err)
	}
	if strings.TrimSpace(visitorID) == "" || strings.TrimSpace(text) == "" {
		return failed(coreError(ErrCodeBadRequest, "visitorId and text are required"))
	}

	guest, err := m.directory.GetGuestByVisitorID(ctx, visitorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failed(coreError(ErrCodeRecipientNotFound, "guest not found"))
		}
		m.log.Error().Err(err).Str("visitor_id", visitorID).Msg("guest lookup failed")
		return failed(coreError(ErrCodePersistFailed, "failed to send message"))
	}

	senderID := s.UserID
	msg := &store.Message{
		SenderType: store.SenderEmployee,
		GuestID:    &guest.ID,
		UserID:     &senderID,
		Text:       text,
	}
	if res := m.persist(ctx, s, msg); !res.OK() {
		return res
	}

	m.dispatcher.ToStaff(ctx, &Event{Kind: EventNewEmployeeMessage, Message: msg})
	m.dispatcher.ToGuest(visitorID, &Event{Kind: EventNewMessage, Message: msg})
	return SendResult{Message: msg}
}

// SendToStaff persists a customer message and pushes it to all online staff.
func (m *MainChannel) SendToStaff(ctx context.Context, s *Session, text string) SendResult {
	if _, err := m.requireActive(ctx, s); err != nil {
		return failed(err)
	}
	if strings.TrimSpace(text) == "" {
		return failed(coreError(ErrCodeBadRequest, "text is required"))
	}

	senderID := s.UserID
	msg := &store.Message{
		SenderType: store.SenderUser,
		UserID:     &senderID,
		Text:       text,
	}
	if res := m.persist(ctx, s, msg); !res.OK() {
		return res
	}

	m.dispatcher.ToStaff(ctx, &Event{Kind: EventNewMessage, Message: msg})
	return SendResult{Message: msg}
}

// SendToUser persists a staff message for a customer and pushes it to the
// customer's sessions if any. The sender is acknowledged either way.
func (m *MainChannel) SendToUser(ctx context.Context, s *Session, userID, text string) SendResult {
	if err := m.requireStaff(ctx, s); err != nil {
		return failed(err)
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(text) == "" {
		return failed(coreError(ErrCodeBadRequest, "userId and text are required"))
	}

	target := userID
	msg := &store.Message{
		SenderType: store.SenderEmployee,
		UserID:     &target,
		Text:       text,
	}
	if res := m.persist(ctx, s, msg); !res.OK() {
		return res
	}

	m.dispatcher.ToUser(userID, &Event{Kind: EventNewMessage, Message: msg})
	return SendResult{Message: msg}
}

// SendNotification persists a notification and pushes it to the recipient.
// Guest recipients are reached on the guest namespace.
func (m *MainChannel) SendNotification(ctx context.Context, s *Session, req NotificationRequest) SendResult {
	if _, err := m.requireActive(ctx, s); err != nil {
		return failed(err)
	}
	if req.RecipientType != store.RecipientUser && req.RecipientType != store.RecipientGuest {
		return failed(coreError(ErrCodeBadRequest, "recipientType must be user or guest"))
	}
	if strings.TrimSpace(req.Recipient) == "" || strings.TrimSpace(req.Type) == "" || strings.TrimSpace(req.Content) == "" {
		return failed(coreError(ErrCodeBadRequest, "recipient, type and content are required"))
	}

	n := &store.Notification{
		RecipientType: req.RecipientType,
		Recipient:     req.Recipient,
		SenderID:      s.UserID,
		Type:          req.Type,
		Content:       req.Content,
		Link:          req.Link,
	}
	if err := m.notifications.SaveNotification(context.WithoutCancel(ctx), n); err != nil {
		m.log.Error().Err(err).Str("session_id", s.ID).Str("user_id", s.UserID).Msg("failed to save notification")
		return failed(coreError(ErrCodePersistFailed, "failed to send notification"))
	}

	ev := &Event{Kind: EventNotification, Notification: n}
	switch req.RecipientType {
	case store.RecipientUser:
		m.dispatcher.ToUser(req.Recipient, ev)
	case store.RecipientGuest:
		m.dispatcher.ToGuest(req.Recipient, ev)
	}
	return SendResult{Notification: n}
}

// Disconnect removes the session from presence and closes it.
func (m *MainChannel) Disconnect(s *Session) {
	if s.UserID != "" {
		m.users.RemoveSession(s.UserID, s.ID)
	}
	m.sessions.Detach(s.ID)
	s.Close()
	m.log.Info().Str("user_id", s.UserID).Str("session_id", s.ID).Msg("user disconnected")
}

func (m *MainChannel) persist(ctx context.Context, s *Session, msg *store.Message) SendResult {
	if err := m.messages.SaveMessage(context.WithoutCancel(ctx), msg); err != nil {
		m.log.Error().Err(err).Str("session_id", s.ID).Str("user_id", s.UserID).Str("sender_type", string(msg.SenderType)).Msg("failed to save message")
		return failed(coreError(ErrCodePersistFailed, "failed to send message"))
	}
	return SendResult{Message: msg}
}

func (m *MainChannel) replySend(s *Session, res SendResult) {
	if !res.OK() {
		m.dispatcher.Reply(s, errorEvent(res.Err))
		return
	}
	m.dispatcher.Reply(s, &Event{Kind: EventMessageSent, Message: res.Message})
}

// requireActive re-reads the sender's record so a suspension applies
// without a reconnect.
func (m *MainChannel) requireActive(ctx context.Context, s *Session) (*store.User, *CoreError) {
	user, err := m.directory.GetUserByID(ctx, s.UserID)
	if err != nil || user.IsSuspended {
		return nil, coreError(ErrCodeUnauthorized, "unauthorized")
	}
	return user, nil
}

// requireStaff is requireActive plus a fresh role check, so a demotion also
// applies on the next send.
func (m *MainChannel) requireStaff(ctx context.Context, s *Session) *CoreError {
	user, err := m.requireActive(ctx, s)
	if err != nil {
		return err
	}
	if !user.Role.IsStaff() {
		return coreError(ErrCodeForbidden, "only staff can send this message")
	}
	return nil
}
