package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	LastSeen     *time.Time
	CreatedAt    time.Time
}

// FriendStatus defines friend relationship status.
type FriendStatus string

const (
	FriendStatusPending  FriendStatus = "pending"
	FriendStatusAccepted FriendStatus = "accepted"
	FriendStatusBlocked  FriendStatus = "blocked"
)

// Friend represents a friend relationship.
type Friend struct {
	ID        int64
	UserID    int64
	FriendID  int64
	Status    FriendStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DirectMessage is a persisted message between two users.
type DirectMessage struct {
	ID         string // ULID assigned before insert
	SenderID   int64
	ReceiverID int64
	Text       string
	Read       bool
	CreatedAt  time.Time
}

// ReadFilter selects the messages MarkRead flips to read.
// Zero-valued fields do not constrain the selection.
type ReadFilter struct {
	ID         string
	SenderID   int64
	ReceiverID int64
}

// Empty reports whether the filter would match every message.
func (f ReadFilter) Empty() bool {
	return f.ID == "" && f.SenderID == 0 && f.ReceiverID == 0
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers searches for users by username.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// LastSeenStore remembers when users were last connected.
type LastSeenStore interface {
	RecordLastSeen(ctx context.Context, userID int64, at time.Time) error
	LastSeen(ctx context.Context, userID int64) (*time.Time, error)
}

// MessageStore handles direct message persistence.
type MessageStore interface {
	// CreateMessage persists msg. CreatedAt is filled in when zero.
	CreateMessage(ctx context.Context, msg *DirectMessage) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*DirectMessage, error)

	// ListConversation returns messages exchanged between a and b in creation
	// order. If before is non-nil only older messages are returned; limit
	// caps the result to the most recent messages.
	ListConversation(ctx context.Context, a, b int64, limit int, before *time.Time) ([]*DirectMessage, error)

	// MarkRead flags unread messages matching the filter as read and
	// returns how many were updated.
	MarkRead(ctx context.Context, filter ReadFilter) (int64, error)

	// Close releases the underlying connection.
	Close() error
}

// FriendStore handles friend persistence.
type FriendStore interface {
	// CreateFriendRequest creates a new friend request (pending status).
	CreateFriendRequest(ctx context.Context, userID, friendID int64) (*Friend, error)

	// UpdateFriendStatus updates the status of a friendship.
	UpdateFriendStatus(ctx context.Context, userID, friendID int64, status FriendStatus) error

	// GetFriendship retrieves a friendship between two users (in either direction).
	GetFriendship(ctx context.Context, userID, friendID int64) (*Friend, error)

	// ListFriends lists friendships for a user, optionally filtered by status.
	ListFriends(ctx context.Context, userID int64, status *FriendStatus) ([]*Friend, error)

	// IsFriend checks if two users are friends (accepted status in either direction).
	IsFriend(ctx context.Context, userID, friendID int64) (bool, error)

	// DeleteFriendship removes a friendship record.
	DeleteFriendship(ctx context.Context, userID, friendID int64) error
}

// Store aggregates the relational storage interfaces.
type Store interface {
	UserStore
	LastSeenStore
	FriendStore
	MessageStore
}
