package core

import "time"

// EventKind is a notification the core emits to sessions.
type EventKind int

const (
	// EventInitialOnlineUsers delivers the online snapshot to a freshly registered session.
	EventInitialOnlineUsers EventKind = iota
	// EventUserStatusChange announces an online/offline transition.
	EventUserStatusChange
	// EventTypingStatus tells a receiver whether a peer is typing to them.
	EventTypingStatus
	// EventReceiveMessage delivers a direct message to its receiver.
	EventReceiveMessage
	// EventMessageSent acknowledges a persisted message to its sender.
	EventMessageSent
	// EventMessageReadStatus tells a sender that the receiver read a message.
	EventMessageReadStatus
	// EventFriendRequest notifies a user about an incoming friend request.
	EventFriendRequest
	// EventError notifies a session about a domain error.
	EventError
)

// String returns the wire name of the event.
func (k EventKind) String() string {
	switch k {
	case EventInitialOnlineUsers:
		return "initial_online_users"
	case EventUserStatusChange:
		return "user_status_change"
	case EventTypingStatus:
		return "typing_status"
	case EventReceiveMessage:
		return "receive_message"
	case EventMessageSent:
		return "message_sent"
	case EventMessageReadStatus:
		return "message_read_status"
	case EventFriendRequest:
		return "friend_request"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// PresenceStatus is the visible state of a user.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// PresenceChange describes a presence transition.
type PresenceChange struct {
	UserID   int64
	Status   PresenceStatus
	LastSeen time.Time
}

// TypingStatus is forwarded to the receiver of a typing signal.
type TypingStatus struct {
	UserID   int64
	IsTyping bool
}

// FriendRequest is pushed to the target of a new friend request.
type FriendRequest struct {
	FromUserID   int64
	FromUsername string
	CreatedAt    time.Time
}

// Event is sent to sessions to describe what happened in the system.
type Event struct {
	Kind          EventKind
	OnlineUsers   []int64         // EventInitialOnlineUsers
	Presence      *PresenceChange // EventUserStatusChange
	Typing        *TypingStatus   // EventTypingStatus
	Message       *Message        // EventReceiveMessage, EventMessageSent
	MessageID     string          // EventMessageReadStatus
	FriendRequest *FriendRequest  // EventFriendRequest
	Error         *CoreError      // EventError
}

func errorEvent(err *CoreError) *Event {
	return &Event{Kind: EventError, Error: err}
}
