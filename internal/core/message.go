package core

import "time"

// Message is the domain model for a direct message.
type Message struct {
	ID         string
	SenderID   int64
	ReceiverID int64
	Text       string
	Read       bool
	CreatedAt  time.Time
	// ServerTS is stamped by the relay after persistence; both the sender ack
	// and the receiver delivery carry the same value.
	ServerTS time.Time
}

// Submission is a message as submitted by a sender.
type Submission struct {
	SenderID   int64
	ReceiverID int64
	Text       string
}
