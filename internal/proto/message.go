package proto

import (
	"encoding/json"
	"time"
)

// Envelope is the frame shape in both directions: an event name and its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is an envelope with a payload not yet encoded.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Main namespace, client to server.
const (
	EventGetOnlineUsers                = "getOnlineUsers"
	EventSendMessageFromEmployee       = "sendMessageFromEmployee"
	EventSendMessageFromUser           = "sendMessageFromUser"
	EventSendMessageFromEmployeeToUser = "sendMessageFromEmployeeToUser"
	EventSendNotification              = "sendNotification"
)

// Guest namespace, client to server.
const (
	EventGuestOnline          = "guestOnline"
	EventSendMessageFromGuest = "sendMessageFromGuest"
)

// Server to client. Both namespaces share the names they have in common.
const (
	EventConnected           = "connected"
	EventOnlineUsers         = "onlineUsers"
	EventNewEmployeeMessage  = "newEmployeeMessage"
	EventNewMessage          = "newMessage"
	EventMessageSent         = "messageSent"
	EventErrorMessage        = "errorMessage"
	EventReceiveNotification = "receiveNotification"
)

// SendFromEmployeeData is the payload of sendMessageFromEmployee.
type SendFromEmployeeData struct {
	VisitorID string `json:"visitorId"`
	Text      string `json:"text"`
}

// SendFromUserData is the payload of sendMessageFromUser.
type SendFromUserData struct {
	Text string `json:"text"`
}

// SendToUserData is the payload of sendMessageFromEmployeeToUser.
type SendToUserData struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

// SendNotificationData is the payload of sendNotification.
type SendNotificationData struct {
	RecipientType string `json:"recipientType"`
	Recipient     string `json:"recipient"`
	Type          string `json:"type"`
	Content       string `json:"content"`
	Link          string `json:"link,omitempty"`
}

// SendFromGuestData is the payload of sendMessageFromGuest.
type SendFromGuestData struct {
	VisitorID string `json:"visitorId"`
	GuestID   string `json:"guestId"`
	Text      string `json:"text"`
}

// Connected acknowledges an authenticated connection.
type Connected struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// OnlineUser is one entry of the onlineUsers array.
type OnlineUser struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Message is a persisted chat message as clients see it.
type Message struct {
	ID         string    `json:"id"`
	SenderType string    `json:"senderType"`
	GuestID    *string   `json:"guestId"`
	UserID     *string   `json:"userId"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// GuestMessageSent wraps the stored message in the guest namespace acknowledgement.
type GuestMessageSent struct {
	Message Message `json:"message"`
}

// Notification is a persisted notification as main-namespace clients see it.
type Notification struct {
	ID            string    `json:"id"`
	RecipientType string    `json:"recipientType"`
	Recipient     string    `json:"recipient"`
	SenderID      string    `json:"senderId"`
	Type          string    `json:"type"`
	Content       string    `json:"content"`
	Link          string    `json:"link,omitempty"`
	IsRead        bool      `json:"isRead"`
	CreatedAt     time.Time `json:"createdAt"`
}

// GuestNotification is the reduced notification pushed to guests.
type GuestNotification struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Error is the errorMessage payload.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
