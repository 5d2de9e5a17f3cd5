package core

import (
	"context"

	"github.com/restobook/realtime-server/internal/store"
)

// Directory is the identity lookup the core consumes.
// Lookups of unknown records return an error wrapping store.ErrNotFound.
type Directory interface {
	GetUserByID(ctx context.Context, id string) (*store.User, error)
	GetGuestByVisitorID(ctx context.Context, visitorID string) (*store.Guest, error)
}

// MessageWriter persists chat messages.
type MessageWriter interface {
	SaveMessage(ctx context.Context, msg *store.Message) error
}

// NotificationWriter persists notifications.
type NotificationWriter interface {
	SaveNotification(ctx context.Context, n *store.Notification) error
}

// TokenVerifier decodes a bearer credential into a user id.
type TokenVerifier interface {
	VerifyToken(token string) (userID string, err error)
}
