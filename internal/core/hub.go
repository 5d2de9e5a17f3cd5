package core

import (
	"context"

	"github.com/rs/zerolog"
)

// HubDeps are the external collaborators the hub consumes.
type HubDeps struct {
	Directory     Directory
	Messages      MessageWriter
	Notifications NotificationWriter
	Verifier      TokenVerifier
}

// Hub owns the process-local presence state and the two namespace handlers.
// Construct one per process and hand it to the transport.
type Hub struct {
	Sessions   *SessionTable
	Users      UserPresence
	Guests     GuestPresence
	Dispatcher *Dispatcher
	Main       *MainChannel
	Guest      *GuestChannel

	log *zerolog.Logger
}

// NewHub creates a hub with fresh in-memory registries.
func NewHub(deps HubDeps, logger *zerolog.Logger) *Hub {
	return NewHubWithPresence(deps, NewUserRegistry(), NewGuestRegistry(), logger)
}

// NewHubWithPresence lets callers supply their own presence backends.
func NewHubWithPresence(deps HubDeps, users UserPresence, guests GuestPresence, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	hubLog := logger.With().Str("component", "hub").Logger()

	sessions := NewSessionTable()
	dispatcher := NewDispatcher(sessions, users, guests, deps.Directory, &hubLog)

	return &Hub{
		Sessions:   sessions,
		Users:      users,
		Guests:     guests,
		Dispatcher: dispatcher,
		Main: NewMainChannel(sessions, users, MainDeps{
			Directory:     deps.Directory,
			Messages:      deps.Messages,
			Notifications: deps.Notifications,
			Verifier:      deps.Verifier,
		}, dispatcher, &hubLog),
		Guest: NewGuestChannel(sessions, guests, deps.Messages, dispatcher, &hubLog),
		log:   &hubLog,
	}
}

// Stats is a point-in-time presence summary.
type Stats struct {
	Sessions int
	Users    int
	Guests   int
}

// Stats reports current presence counts.
func (h *Hub) Stats() Stats {
	return Stats{
		Sessions: h.Sessions.Len(),
		Users:    len(h.Users.AllIdentities()),
		Guests:   len(h.Guests.AllVisitors()),
	}
}

// Run blocks until ctx is done, then closes every live session so the
// transport write loops can finish. Sessions connecting afterwards are refused.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	closed := h.Sessions.CloseAll()
	h.log.Info().Int("sessions", closed).Msg("hub stopped")
}
