package core

// CommandKind describes what the session wants to do.
type CommandKind int

const (
	// CommandSendMessage submits a direct message through the relay.
	CommandSendMessage CommandKind = iota
	// CommandTyping starts or stops a typing indicator.
	CommandTyping
	// CommandMarkRead forwards a read receipt to the original sender.
	CommandMarkRead
	// CommandLogout unregisters the session (explicit user_offline).
	CommandLogout
)

// TypingSignal is the payload of CommandTyping.
type TypingSignal struct {
	ReceiverID int64
	IsTyping   bool
}

// ReadSignal is the payload of CommandMarkRead.
type ReadSignal struct {
	MessageID string
	SenderID  int64
}

// Command represents an action requested by a session.
type Command struct {
	Kind   CommandKind
	Submit Submission
	Typing TypingSignal
	Read   ReadSignal
}
