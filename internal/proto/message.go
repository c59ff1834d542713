package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypeUserConnected = "user_connected"
	InboundTypeUserOffline   = "user_offline"
	InboundTypeTypingStart   = "typing_start"
	InboundTypeNewMessage    = "new_message"
	InboundTypeMessageRead   = "message_read"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventInitialOnlineUsers = "initial_online_users"
	EventUserStatusChange   = "user_status_change"
	EventTypingStatus       = "typing_status"
	EventReceiveMessage     = "receive_message"
	EventMessageSent        = "message_sent"
	EventMessageReadStatus  = "message_read_status"
	EventFriendRequest      = "friend_request"
)

// UserConnectedData identifies the connection. Token may also travel in the
// Authorization header or the token query parameter.
type UserConnectedData struct {
	UserID   int64  `json:"userId,omitempty"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// UserOfflineData announces an explicit logout.
type UserOfflineData struct {
	UserID int64 `json:"userId,omitempty"`
}

// TypingData starts or stops a typing indicator. UserID is informational;
// the server uses the identity bound to the connection.
type TypingData struct {
	UserID     int64 `json:"userId,omitempty"`
	ReceiverID int64 `json:"receiverId"`
	IsTyping   bool  `json:"isTyping"`
}

// NewMessageData submits a direct message.
type NewMessageData struct {
	SenderID   int64  `json:"senderId,omitempty"`
	ReceiverID int64  `json:"receiverId"`
	Text       string `json:"text"`
}

// MessageReadData acknowledges that a received message was read.
type MessageReadData struct {
	MessageID string `json:"messageId"`
	SenderID  int64  `json:"senderId"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// UserStatusChange is broadcast on every online/offline transition.
type UserStatusChange struct {
	UserID   int64  `json:"userId"`
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen"`
}

// TypingStatus tells the receiver that UserID started or stopped typing.
type TypingStatus struct {
	UserID   int64 `json:"userId"`
	IsTyping bool  `json:"isTyping"`
}

// Message is a stored direct message as seen by clients.
// Timestamps are unix milliseconds.
type Message struct {
	ID              string `json:"id"`
	SenderID        int64  `json:"senderId"`
	ReceiverID      int64  `json:"receiverId"`
	Text            string `json:"text"`
	Read            bool   `json:"read"`
	CreatedAt       int64  `json:"createdAt"`
	ServerTimestamp int64  `json:"serverTimestamp,omitempty"`
}

// MessageReadStatus tells the sender that MessageID was read.
type MessageReadStatus struct {
	MessageID string `json:"messageId"`
}

// FriendRequest notifies a user about an incoming friend request.
type FriendRequest struct {
	FromUserID   int64  `json:"fromUserId"`
	FromUsername string `json:"fromUsername"`
	CreatedAt    int64  `json:"createdAt"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
