package http

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/restobook/realtime-server/internal/core"
	"github.com/restobook/realtime-server/internal/proto"
	"github.com/restobook/realtime-server/internal/store"
)

var errInvalidPayload = errors.New("invalid payload")

// mainInboundToCommand maps a main-namespace frame to a core command.
// A nil command with a non-nil CoreError means the frame is answered with errorMessage.
func mainInboundToCommand(in proto.Envelope) (*core.Command, *core.CoreError) {
	switch in.Event {
	case proto.EventGetOnlineUsers:
		return &core.Command{Kind: core.CommandGetOnlineUsers}, nil
	case proto.EventSendMessageFromEmployee:
		var data proto.SendFromEmployeeData
		if err := decodeData(in.Data, &data); err != nil {
			return nil, core.NewBadRequest(err.Error())
		}
		return &core.Command{Kind: core.CommandSendFromEmployee, VisitorID: data.VisitorID, Text: data.Text}, nil
	case proto.EventSendMessageFromUser:
		var data proto.SendFromUserData
		if err := decodeData(in.Data, &data); err != nil {
			return nil, core.NewBadRequest(err.Error())
		}
		return &core.Command{Kind: core.CommandSendFromUser, Text: data.Text}, nil
	case proto.EventSendMessageFromEmployeeToUser:
		var data proto.SendToUserData
		if err := decodeData(in.Data, &data); err != nil {
			return nil, core.NewBadRequest(err.Error())
		}
		return &core.Command{Kind: core.CommandSendFromEmployeeToUser, UserID: data.UserID, Text: data.Text}, nil
	case proto.EventSendNotification:
		var data proto.SendNotificationData
		if err := decodeData(in.Data, &data); err != nil {
			return nil, core.NewBadRequest(err.Error())
		}
		return &core.Command{
			Kind: core.CommandSendNotification,
			Notification: core.NotificationRequest{
				RecipientType: store.RecipientType(data.RecipientType),
				Recipient:     data.Recipient,
				Type:          data.Type,
				Content:       data.Content,
				Link:          data.Link,
			},
		}, nil
	default:
		return nil, core.NewUnknownEvent()
	}
}

// guestInboundToCommand maps a guest-namespace frame to a core command.
func guestInboundToCommand(in proto.Envelope) (*core.Command, *core.CoreError) {
	switch in.Event {
	case proto.EventGuestOnline:
		visitorID, err := decodeVisitorID(in.Data)
		if err != nil {
			return nil, core.NewBadRequest(err.Error())
		}
		return &core.Command{Kind: core.CommandGuestOnline, VisitorID: visitorID}, nil
	case proto.EventSendMessageFromGuest:
		var data proto.SendFromGuestData
		if err := decodeData(in.Data, &data); err != nil {
			return nil, core.NewBadRequest(err.Error())
		}
		return &core.Command{Kind: core.CommandSendFromGuest, VisitorID: data.VisitorID, GuestID: data.GuestID, Text: data.Text}, nil
	default:
		return nil, core.NewUnknownEvent()
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errInvalidPayload
	}
	return nil
}

// decodeVisitorID accepts the bare string form and, for older clients, {"visitorId": "..."}.
func decodeVisitorID(raw json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id), nil
	}
	var obj struct {
		VisitorID string `json:"visitorId"`
	}
	if err := decodeData(raw, &obj); err != nil {
		return "", err
	}
	return strings.TrimSpace(obj.VisitorID), nil
}

// outboundFromEvent renders a core event for the namespace the session lives on.
func outboundFromEvent(ns core.Namespace, event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventConnected:
		return proto.Outbound{Event: proto.EventConnected, Data: proto.Connected{UserID: event.UserID, Role: string(event.Role)}}
	case core.EventOnlineUsers:
		users := make([]proto.OnlineUser, 0, len(event.Online))
		for _, u := range event.Online {
			users = append(users, proto.OnlineUser{ID: u.ID, Role: string(u.Role)})
		}
		return proto.Outbound{Event: proto.EventOnlineUsers, Data: users}
	case core.EventNewEmployeeMessage:
		return proto.Outbound{Event: proto.EventNewEmployeeMessage, Data: toProtoMessage(event.Message)}
	case core.EventNewMessage:
		return proto.Outbound{Event: proto.EventNewMessage, Data: toProtoMessage(event.Message)}
	case core.EventMessageSent:
		if ns == core.NamespaceGuest {
			return proto.Outbound{Event: proto.EventMessageSent, Data: proto.GuestMessageSent{Message: toProtoMessage(event.Message)}}
		}
		return proto.Outbound{Event: proto.EventMessageSent, Data: toProtoMessage(event.Message)}
	case core.EventNotification:
		n := event.Notification
		if ns == core.NamespaceGuest {
			return proto.Outbound{Event: proto.EventReceiveNotification, Data: proto.GuestNotification{Type: n.Type, Content: n.Content}}
		}
		return proto.Outbound{Event: proto.EventReceiveNotification, Data: toProtoNotification(n)}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Event: proto.EventErrorMessage, Data: proto.Error{Message: "unknown error"}}
		}
		return proto.Outbound{Event: proto.EventErrorMessage, Data: proto.Error{Message: event.Error.Message, Code: event.Error.Code}}
	default:
		return proto.Outbound{Event: proto.EventErrorMessage, Data: proto.Error{Message: "unknown error"}}
	}
}

func toProtoMessage(m *store.Message) proto.Message {
	return proto.Message{
		ID:         m.ID,
		SenderType: string(m.SenderType),
		GuestID:    m.GuestID,
		UserID:     m.UserID,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
}

func toProtoNotification(n *store.Notification) proto.Notification {
	return proto.Notification{
		ID:            n.ID,
		RecipientType: string(n.RecipientType),
		Recipient:     n.Recipient,
		SenderID:      n.SenderID,
		Type:          n.Type,
		Content:       n.Content,
		Link:          n.Link,
		IsRead:        n.IsRead,
		CreatedAt:     n.CreatedAt,
	}
}
