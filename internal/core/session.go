package core

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyIdentified is returned when a session announces its identity twice.
var ErrAlreadyIdentified = errors.New("session already identified")

const (
	sessionCommandBuffer = 16
	sessionEventBuffer   = 64
)

// Session is one live transport connection as seen by the core layer.
type Session struct {
	ID          string
	ConnectedAt time.Time
	Commands    chan *Command
	Events      chan *Event

	mu     sync.RWMutex
	userID int64

	done      chan struct{}
	closeOnce sync.Once
}

// NewSession constructs an unidentified session with initialized channels.
func NewSession() *Session {
	return &Session{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		Commands:    make(chan *Command, sessionCommandBuffer),
		Events:      make(chan *Event, sessionEventBuffer),
		done:        make(chan struct{}),
	}
}

// Identify binds the session to a user. The identity is immutable once set.
func (s *Session) Identify(userID int64) error {
	if userID <= 0 {
		return ErrBadRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != 0 {
		return ErrAlreadyIdentified
	}
	s.userID = userID
	return nil
}

// UserID returns the bound identity, or 0 before the handshake.
func (s *Session) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Identified reports whether the handshake has completed.
func (s *Session) Identified() bool {
	return s.UserID() != 0
}

// Send queues an event without blocking. Returns false if the session is
// closed or its buffer is full.
func (s *Session) Send(ev *Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.Events <- ev:
		return true
	default:
		// Drop if slow consumer.
		return false
	}
}

// Close marks the transport as gone. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed once the transport behind the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
