package core

import "github.com/restobook/realtime-server/internal/store"

// EventKind is a notification the core emits to sessions.
type EventKind int

const (
	// EventConnected acknowledges an authenticated main-namespace connection.
	EventConnected EventKind = iota
	// EventOnlineUsers answers a presence query.
	EventOnlineUsers
	// EventNewEmployeeMessage is the staff-wide copy of a message.
	EventNewEmployeeMessage
	// EventNewMessage pushes a message to its addressee.
	EventNewMessage
	// EventMessageSent confirms persistence to the sender.
	EventMessageSent
	// EventNotification pushes a notification to its recipient.
	EventNotification
	// EventError reports a failure to the originating session only.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventOnlineUsers:
		return "online_users"
	case EventNewEmployeeMessage:
		return "new_employee_message"
	case EventNewMessage:
		return "new_message"
	case EventMessageSent:
		return "message_sent"
	case EventNotification:
		return "notification"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// OnlineUser is one entry of a presence snapshot.
type OnlineUser struct {
	ID   string
	Role store.Role
}

// Event is sent to sessions to describe what happened in the system.
type Event struct {
	Kind         EventKind
	UserID       string
	Role         store.Role
	Online       []OnlineUser
	Message      *store.Message
	Notification *store.Notification
	Error        *CoreError
}

func errorEvent(err *CoreError) *Event {
	return &Event{Kind: EventError, Error: err}
}
