package client

// State is the connection lifecycle of a Manager.
type State int

const (
	// StateIdle means Connect was never called.
	StateIdle State = iota
	StateConnecting
	StateConnected
	// StateReconnecting means the transport dropped and a retry is pending.
	StateReconnecting
	// StateDisconnected means every reconnect attempt failed. The UI should show
	// a persistent offline indicator; Connect starts over.
	StateDisconnected
	// StateClosed means the user closed the manager or logged out.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// active reports whether a run loop owns the transport in this state.
func (s State) active() bool {
	return s == StateConnecting || s == StateConnected || s == StateReconnecting
}
