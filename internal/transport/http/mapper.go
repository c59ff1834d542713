package http

import (
	"fmt"
	"time"

	"github.com/vovakirdan/kinchat-server/internal/core"
	"github.com/vovakirdan/kinchat-server/internal/proto"
)

// inboundToCommand maps an identified client's frame to a core command.
// A protocol error is reported back to the client; a non-nil error is fatal
// for the connection.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeNewMessage:
		var msg proto.NewMessageData
		if err := proto.DecodeData(inbound.Data, &msg); err != nil {
			return nil, badPayload(inbound.Type), nil
		}
		if msg.ReceiverID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "receiverId is required"}, nil
		}
		// SenderID is taken from the session identity by the hub.
		return &core.Command{
			Kind: core.CommandSendMessage,
			Submit: core.Submission{
				ReceiverID: msg.ReceiverID,
				Text:       msg.Text,
			},
		}, nil, nil
	case proto.InboundTypeTypingStart:
		var typing proto.TypingData
		if err := proto.DecodeData(inbound.Data, &typing); err != nil {
			return nil, badPayload(inbound.Type), nil
		}
		if typing.ReceiverID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "receiverId is required"}, nil
		}
		return &core.Command{
			Kind:   core.CommandTyping,
			Typing: core.TypingSignal{ReceiverID: typing.ReceiverID, IsTyping: typing.IsTyping},
		}, nil, nil
	case proto.InboundTypeMessageRead:
		var read proto.MessageReadData
		if err := proto.DecodeData(inbound.Data, &read); err != nil {
			return nil, badPayload(inbound.Type), nil
		}
		if read.MessageID == "" || read.SenderID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "messageId and senderId are required"}, nil
		}
		return &core.Command{
			Kind: core.CommandMarkRead,
			Read: core.ReadSignal{MessageID: read.MessageID, SenderID: read.SenderID},
		}, nil, nil
	case proto.InboundTypeUserOffline:
		return &core.Command{Kind: core.CommandLogout}, nil, nil
	case proto.InboundTypeUserConnected:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "already connected"}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}, nil
	}
}

func badPayload(typ string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: fmt.Sprintf("invalid %s payload", typ)}
}

func outboundFromEvent(event *core.Event) (*proto.Outbound, error) {
	switch event.Kind {
	case core.EventInitialOnlineUsers:
		users := event.OnlineUsers
		if users == nil {
			users = []int64{}
		}
		return proto.NewEvent(proto.EventInitialOnlineUsers, users)
	case core.EventUserStatusChange:
		return proto.NewEvent(proto.EventUserStatusChange, proto.UserStatusChange{
			UserID:   event.Presence.UserID,
			Status:   string(event.Presence.Status),
			LastSeen: unixMilli(event.Presence.LastSeen),
		})
	case core.EventTypingStatus:
		return proto.NewEvent(proto.EventTypingStatus, proto.TypingStatus{
			UserID:   event.Typing.UserID,
			IsTyping: event.Typing.IsTyping,
		})
	case core.EventReceiveMessage:
		return proto.NewEvent(proto.EventReceiveMessage, messageToProto(event.Message))
	case core.EventMessageSent:
		return proto.NewEvent(proto.EventMessageSent, messageToProto(event.Message))
	case core.EventMessageReadStatus:
		return proto.NewEvent(proto.EventMessageReadStatus, proto.MessageReadStatus{MessageID: event.MessageID})
	case core.EventFriendRequest:
		return proto.NewEvent(proto.EventFriendRequest, proto.FriendRequest{
			FromUserID:   event.FriendRequest.FromUserID,
			FromUsername: event.FriendRequest.FromUsername,
			CreatedAt:    unixMilli(event.FriendRequest.CreatedAt),
		})
	case core.EventError:
		if event.Error == nil {
			return proto.NewError("unknown", "unknown error"), nil
		}
		return proto.NewError(event.Error.Code, event.Error.Message), nil
	default:
		return nil, fmt.Errorf("unknown event kind %d", event.Kind)
	}
}

func messageToProto(m *core.Message) proto.Message {
	return proto.Message{
		ID:              m.ID,
		SenderID:        m.SenderID,
		ReceiverID:      m.ReceiverID,
		Text:            m.Text,
		Read:            m.Read,
		CreatedAt:       unixMilli(m.CreatedAt),
		ServerTimestamp: unixMilli(m.ServerTS),
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
