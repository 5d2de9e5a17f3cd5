package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned (wrapped) when a lookup matches no record.
var ErrNotFound = errors.New("not found")

// Role is the authorization class of a registered user.
type Role string

const (
	RoleUser     Role = "user"
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleEmployee, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsStaff reports whether r may act for the restaurant. Staff receive the
// team-wide message fan-out.
func (r Role) IsStaff() bool {
	return r == RoleEmployee || r == RoleAdmin
}

// User represents a registered customer or staff member.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	IsSuspended  bool
	CreatedAt    time.Time
}

// Guest is the server-side record of an anonymous visitor.
// VisitorID is assigned by the browser before any server contact.
type Guest struct {
	ID        string
	VisitorID string
	Name      string
	CreatedAt time.Time
}

// SenderType tags who authored a chat message.
type SenderType string

const (
	SenderGuest    SenderType = "guest"
	SenderUser     SenderType = "user"
	SenderEmployee SenderType = "employee"
)

// Message is an immutable chat message.
// GuestID and UserID are optional references; which one names the author depends on SenderType.
type Message struct {
	ID         string
	SenderType SenderType
	GuestID    *string
	UserID     *string
	Text       string
	CreatedAt  time.Time
}

// RecipientType tags who a notification is addressed to.
type RecipientType string

const (
	RecipientUser  RecipientType = "user"
	RecipientGuest RecipientType = "guest"
)

// Notification is addressed to a user id or a guest visitor id.
type Notification struct {
	ID            string
	RecipientType RecipientType
	Recipient     string
	SenderID      string
	Type          string
	Content       string
	Link          string
	IsRead        bool
	CreatedAt     time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, name, email, passwordHash string, role Role) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// SetUserSuspended toggles the suspension flag.
	SetUserSuspended(ctx context.Context, id string, suspended bool) error
}

// GuestStore handles guest record persistence.
type GuestStore interface {
	// EnsureGuest returns the guest for visitorID, creating it when absent.
	EnsureGuest(ctx context.Context, visitorID, name string) (*Guest, error)

	// GetGuestByVisitorID retrieves a guest by its browser-assigned visitor id.
	GetGuestByVisitorID(ctx context.Context, visitorID string) (*Guest, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message. ID and CreatedAt are filled when empty.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListGuestMessages returns the conversation with a guest, oldest first.
	// If before is non-zero, only messages created earlier are returned.
	ListGuestMessages(ctx context.Context, guestID string, limit int, before time.Time) ([]*Message, error)

	// ListUserMessages returns messages referencing a user, oldest first.
	ListUserMessages(ctx context.Context, userID string, limit int, before time.Time) ([]*Message, error)
}

// NotificationStore handles notification persistence.
type NotificationStore interface {
	// SaveNotification persists a notification. ID and CreatedAt are filled when empty.
	SaveNotification(ctx context.Context, n *Notification) error

	// ListNotifications returns notifications for a recipient, newest first.
	ListNotifications(ctx context.Context, recipientType RecipientType, recipient string, limit int) ([]*Notification, error)

	// MarkNotificationRead flags a notification addressed to the recipient as read.
	MarkNotificationRead(ctx context.Context, id string, recipientType RecipientType, recipient string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	GuestStore
	MessageStore
	NotificationStore

	// Close closes the underlying database connection.
	Close() error
}
