package core

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/restobook/realtime-server/internal/store"
)

// GuestChannel serves anonymous visitors. No authentication is performed:
// the visitor id is whatever the client announces.
type GuestChannel struct {
	sessions   *SessionTable
	guests     GuestPresence
	messages   MessageWriter
	dispatcher *Dispatcher
	log        *zerolog.Logger
}

// NewGuestChannel builds the guest namespace handler.
func NewGuestChannel(sessions *SessionTable, guests GuestPresence, messages MessageWriter, dispatcher *Dispatcher, logger *zerolog.Logger) *GuestChannel {
	return &GuestChannel{
		sessions:   sessions,
		guests:     guests,
		messages:   messages,
		dispatcher: dispatcher,
		log:        logger,
	}
}

// Connect makes an anonymous session addressable. It is not yet bound to a
// visitor. Like MainChannel.Connect it reports false once the hub has stopped.
func (g *GuestChannel) Connect(s *Session) bool {
	if !g.sessions.Attach(s) {
		s.Close()
		return false
	}
	g.log.Debug().Str("session_id", s.ID).Msg("guest connected")
	return true
}

// Handle executes one inbound command for the session.
func (g *GuestChannel) Handle(ctx context.Context, s *Session, cmd *Command) {
	switch cmd.Kind {
	case CommandGuestOnline:
		if err := g.Announce(s, cmd.VisitorID); err != nil {
			g.dispatcher.Reply(s, errorEvent(err))
		}
	case CommandSendFromGuest:
		res := g.SendMessage(ctx, s, cmd.VisitorID, cmd.GuestID, cmd.Text)
		g.reply(s, res)
	default:
		g.dispatcher.Reply(s, errorEvent(coreError(ErrCodeUnknownEvent, "unknown event")))
	}
}

// Announce binds visitorID to the session, replacing any earlier binding.
// The replaced session is not closed; it simply stops receiving pushes.
func (g *GuestChannel) Announce(s *Session, visitorID string) *CoreError {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return coreError(ErrCodeBadRequest, "visitorId is required")
	}

	if prev, ok := g.guests.SessionFor(visitorID); ok && prev != s.ID {
		g.log.Debug().Str("visitor_id", visitorID).Str("previous_session_id", prev).Str("session_id", s.ID).Msg("guest session replaced")
	}
	g.guests.Bind(visitorID, s.ID)
	g.log.Info().Str("visitor_id", visitorID).Str("session_id", s.ID).Msg("guest online")
	return nil
}

// SendMessage stores a guest-authored message and confirms it to the sender.
// Staff are not pushed from here; they read guest messages through the
// conversation history.
func (g *GuestChannel) SendMessage(ctx context.Context, s *Session, visitorID, guestID, text string) SendResult {
	if strings.TrimSpace(guestID) == "" || strings.TrimSpace(text) == "" {
		return failed(coreError(ErrCodeBadRequest, "guestId and text are required"))
	}

	msg := &store.Message{
		SenderType: store.SenderGuest,
		GuestID:    &guestID,
		Text:       text,
	}
	if err := g.messages.SaveMessage(context.WithoutCancel(ctx), msg); err != nil {
		g.log.Error().Err(err).Str("session_id", s.ID).Str("visitor_id", visitorID).Msg("failed to save guest message")
		return failed(coreError(ErrCodePersistFailed, "failed to send message"))
	}

	return SendResult{Message: msg}
}

// Disconnect drops every visitor binding that still points at the session.
func (g *GuestChannel) Disconnect(s *Session) {
	for _, visitorID := range g.guests.UnbindSession(s.ID) {
		g.log.Info().Str("visitor_id", visitorID).Str("session_id", s.ID).Msg("guest offline")
	}
	g.sessions.Detach(s.ID)
	s.Close()
}

func (g *GuestChannel) reply(s *Session, res SendResult) {
	if !res.OK() {
		g.dispatcher.Reply(s, errorEvent(res.Err))
		return
	}
	g.dispatcher.Reply(s, &Event{Kind: EventMessageSent, Message: res.Message})
}
