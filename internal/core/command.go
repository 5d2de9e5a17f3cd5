package core

import "github.com/restobook/realtime-server/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandGetOnlineUsers asks for a presence snapshot.
	CommandGetOnlineUsers CommandKind = iota
	// CommandSendFromEmployee sends a staff reply to a guest.
	CommandSendFromEmployee
	// CommandSendFromUser sends a customer message to staff.
	CommandSendFromUser
	// CommandSendFromEmployeeToUser sends a staff message to a customer.
	CommandSendFromEmployeeToUser
	// CommandSendNotification persists and pushes a notification.
	CommandSendNotification
	// CommandGuestOnline binds a visitor id to the guest session.
	CommandGuestOnline
	// CommandSendFromGuest stores a guest message for staff.
	CommandSendFromGuest
)

// Command represents an action requested by a session.
type Command struct {
	Kind      CommandKind
	VisitorID string
	GuestID   string
	UserID    string
	Text      string

	Notification NotificationRequest
}

// NotificationRequest carries the fields of a sendNotification call.
type NotificationRequest struct {
	RecipientType store.RecipientType
	Recipient     string
	Type          string
	Content       string
	Link          string
}
