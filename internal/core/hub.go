package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/kinchat-server/internal/metrics"
)

const lastSeenWriteTimeout = 5 * time.Second

// LastSeenRecorder stores the time a user was last connected.
type LastSeenRecorder interface {
	RecordLastSeen(ctx context.Context, userID int64, at time.Time) error
}

// Options tunes a Hub. Zero values select defaults.
type Options struct {
	Policy         Policy
	LastSeen       LastSeenRecorder
	TypingTimeout  time.Duration
	MaxTextLength  int
	PersistTimeout time.Duration
	Logger         *zerolog.Logger
}

// Hub coordinates sessions, presence, typing and message relay.
//
// Register and unregister run on the Run goroutine only, so the online
// broadcast, the snapshot for the joining session and the offline broadcast
// are totally ordered. Commands of one session are executed in arrival order
// on a goroutine dedicated to that session.
type Hub struct {
	registry *Registry
	presence *Presence
	typing   *Typing
	relay    *Relay
	receipts *Receipts
	lastSeen LastSeenRecorder

	register   chan *Session
	unregister chan *Session
	stopped    chan struct{}

	log *zerolog.Logger
	now func() time.Time
}

// NewHub creates a new hub backed by the given message store.
func NewHub(messages MessageStore, opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	hubLog := logger.With().Str("component", "hub").Logger()

	registry := NewRegistry()
	return &Hub{
		registry:   registry,
		presence:   NewPresence(registry, &hubLog),
		typing:     NewTyping(registry, opts.TypingTimeout),
		relay:      NewRelay(registry, messages, opts.Policy, opts.MaxTextLength, opts.PersistTimeout, &hubLog),
		receipts:   NewReceipts(registry),
		lastSeen:   opts.LastSeen,
		register:   make(chan *Session),
		unregister: make(chan *Session),
		stopped:    make(chan struct{}),
		log:        &hubLog,
		now:        time.Now,
	}
}

// Run processes registrations until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.register:
			h.handleRegister(ctx, s)
		case s := <-h.unregister:
			h.handleUnregister(s)
		}
	}
}

// RegisterClient announces an identified session.
func (h *Hub) RegisterClient(s *Session) {
	select {
	case h.register <- s:
	case <-h.stopped:
	}
}

// UnregisterClient removes a session and closes it. Unknown or superseded
// sessions are ignored.
func (h *Hub) UnregisterClient(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.stopped:
	}
}

// IsOnline reports whether userID has a live session.
func (h *Hub) IsOnline(userID int64) bool {
	return h.registry.IsOnline(userID)
}

// OnlineUsers returns a sorted snapshot of the connected users.
func (h *Hub) OnlineUsers() []int64 {
	return h.registry.ListOnline()
}

// Submit relays a message on behalf of senderID from outside a session (REST).
// The ack goes to the sender's live session, if any.
func (h *Hub) Submit(ctx context.Context, sub Submission) (Message, error) {
	return h.relay.Submit(ctx, nil, sub)
}

// NotifyRead forwards a read receipt for messageID to senderID.
func (h *Hub) NotifyRead(messageID string, senderID int64) bool {
	return h.receipts.Forward(messageID, senderID)
}

// NotifyFriendRequest pushes a friend request to toUserID if connected.
func (h *Hub) NotifyFriendRequest(toUserID int64, req FriendRequest) bool {
	target, ok := h.registry.Lookup(toUserID)
	if !ok {
		return false
	}
	return target.Send(&Event{Kind: EventFriendRequest, FriendRequest: &req})
}

func (h *Hub) handleRegister(ctx context.Context, s *Session) {
	userID := s.UserID()
	if userID == 0 {
		s.Send(errorEvent(coreError(ErrCodeNotIdentified, "session is not identified")))
		return
	}

	superseded, cameOnline := h.registry.Register(userID, s)
	metrics.SessionsOnline.Set(float64(h.registry.Len()))
	if superseded != nil {
		superseded.Close()
		metrics.SessionsSuperseded.Inc()
		h.log.Info().
			Int64("user_id", userID).
			Str("session_id", s.ID).
			Str("superseded_session_id", superseded.ID).
			Msg("session superseded")
	}

	if cameOnline {
		h.presence.Online(userID, h.now().UTC())
	}
	// The snapshot is taken after the session's own entry is stored.
	h.presence.Snapshot(s)

	h.log.Debug().Int64("user_id", userID).Str("session_id", s.ID).Msg("session registered")
	go h.serve(ctx, s)
}

func (h *Hub) handleUnregister(s *Session) {
	userID, ok := h.registry.Unregister(s)
	if !ok {
		return
	}
	metrics.SessionsOnline.Set(float64(h.registry.Len()))
	s.Close()

	at := h.now().UTC()
	h.typing.StopAllFrom(userID)
	h.presence.Offline(userID, at)
	h.log.Debug().Int64("user_id", userID).Str("session_id", s.ID).Msg("session unregistered")

	if h.lastSeen != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), lastSeenWriteTimeout)
			defer cancel()
			if err := h.lastSeen.RecordLastSeen(ctx, userID, at); err != nil {
				h.log.Warn().Err(err).Int64("user_id", userID).Msg("record last seen")
			}
		}()
	}
}

func (h *Hub) serve(ctx context.Context, s *Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			return
		case cmd := <-s.Commands:
			if cmd != nil {
				h.dispatch(ctx, s, cmd)
			}
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, s *Session, cmd *Command) {
	userID := s.UserID()

	switch cmd.Kind {
	case CommandSendMessage:
		sub := cmd.Submit
		sub.SenderID = userID
		if _, err := h.relay.Submit(ctx, s, sub); err != nil {
			s.Send(errorEvent(ToCoreError(err)))
		}
	case CommandTyping:
		if cmd.Typing.ReceiverID <= 0 {
			s.Send(errorEvent(coreError(ErrCodeBadRequest, "receiver is required")))
			return
		}
		if cmd.Typing.IsTyping {
			h.typing.Start(userID, cmd.Typing.ReceiverID)
		} else {
			h.typing.Stop(userID, cmd.Typing.ReceiverID)
		}
	case CommandMarkRead:
		h.receipts.Forward(cmd.Read.MessageID, cmd.Read.SenderID)
	case CommandLogout:
		h.UnregisterClient(s)
	default:
		s.Send(errorEvent(coreError(ErrCodeBadRequest, "unknown command")))
	}
}
