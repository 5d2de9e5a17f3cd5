package core

import (
	"context"

	"github.com/rs/zerolog"
)

// Dispatcher resolves a logical recipient to live sessions and emits to each.
// Delivery is at-most-once: no acknowledgement, no retry.
type Dispatcher struct {
	sessions  *SessionTable
	users     UserPresence
	guests    GuestPresence
	directory Directory
	log       *zerolog.Logger
}

// NewDispatcher wires the lookup tables used for fan-out.
func NewDispatcher(sessions *SessionTable, users UserPresence, guests GuestPresence, directory Directory, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sessions:  sessions,
		users:     users,
		guests:    guests,
		directory: directory,
		log:       logger,
	}
}

// ToStaff emits ev to every session of every present, non-suspended staff
// member. Roles are fetched fresh from the directory on each call so a role
// change or suspension applies on the next send.
// Returns the number of sessions reached.
func (d *Dispatcher) ToStaff(ctx context.Context, ev *Event) int {
	delivered := 0
	for _, userID := range d.users.AllIdentities() {
		user, err := d.directory.GetUserByID(ctx, userID)
		if err != nil {
			d.log.Debug().Err(err).Str("user_id", userID).Msg("skip recipient: role lookup failed")
			continue
		}
		if !user.Role.IsStaff() || user.IsSuspended {
			continue
		}
		delivered += d.ToUser(userID, ev)
	}
	return delivered
}

// ToUser emits ev to all sessions registered for userID.
func (d *Dispatcher) ToUser(userID string, ev *Event) int {
	delivered := 0
	for _, sid := range d.users.SessionsFor(userID) {
		if d.emit(sid, ev) {
			delivered++
		}
	}
	return delivered
}

// ToGuest emits ev to the visitor's current guest-namespace session.
func (d *Dispatcher) ToGuest(visitorID string, ev *Event) bool {
	sid, ok := d.guests.SessionFor(visitorID)
	if !ok {
		return false
	}
	return d.emit(sid, ev)
}

// Reply emits ev straight to the originating session.
func (d *Dispatcher) Reply(s *Session, ev *Event) bool {
	if ok := s.Emit(ev); !ok {
		d.log.Debug().Str("session_id", s.ID).Str("event", ev.Kind.String()).Msg("reply dropped")
		return false
	}
	return true
}

func (d *Dispatcher) emit(sessionID string, ev *Event) bool {
	s, ok := d.sessions.Get(sessionID)
	if !ok {
		return false
	}
	if !s.Emit(ev) {
		d.log.Debug().Str("session_id", sessionID).Str("event", ev.Kind.String()).Msg("event dropped")
		return false
	}
	return true
}
