package client

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/kinchat-server/internal/proto"
)

const (
	DefaultReconnectDelay       = time.Second
	DefaultMaxReconnectDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 5

	writeTimeout     = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

// ErrNotConnected is returned by senders while no transport is attached.
var ErrNotConnected = errors.New("client is not connected")

// RejectedError is returned when the server answered the handshake with an
// error frame. Rejected handshakes are not retried.
type RejectedError struct {
	Code string
	Msg  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("handshake rejected: %s: %s", e.Code, e.Msg)
}

// Options configures a Manager. Zero values select defaults.
type Options struct {
	// URL is the WebSocket endpoint, for example ws://localhost:8080/ws.
	URL    string
	UserID int64
	Token  string

	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int

	Logger *zerolog.Logger
}

// Manager owns the realtime connection of one signed-in user. It keeps at
// most one transport open, reconnects with bounded exponential backoff and
// fans incoming events out to typed subscribers.
type Manager struct {
	opts Options
	log  *zerolog.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	stop  context.CancelFunc
	done  chan struct{}

	initialOnline listeners[[]int64]
	status        listeners[proto.UserStatusChange]
	received      listeners[proto.Message]
	sent          listeners[proto.Message]
	typing        listeners[proto.TypingStatus]
	read          listeners[proto.MessageReadStatus]
	friendReqs    listeners[proto.FriendRequest]
	errs          listeners[proto.Error]
	states        listeners[State]
}

// NewManager builds an idle manager.
func NewManager(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnectDelay <= 0 {
		opts.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if opts.MaxReconnectDelay < opts.ReconnectDelay {
		opts.MaxReconnectDelay = opts.ReconnectDelay
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "client").Int64("user_id", opts.UserID).Logger()
	return &Manager{opts: opts, log: &l}
}

// OnInitialOnlineUsers is called with the online snapshot after every (re)connect.
func (m *Manager) OnInitialOnlineUsers(fn func([]int64)) func() {
	return m.initialOnline.add(fn)
}

func (m *Manager) OnUserStatus(fn func(proto.UserStatusChange)) func() {
	return m.status.add(fn)
}

// OnMessage is called for messages addressed to this user.
func (m *Manager) OnMessage(fn func(proto.Message)) func() {
	return m.received.add(fn)
}

// OnMessageSent is called when the server acknowledged a stored message.
func (m *Manager) OnMessageSent(fn func(proto.Message)) func() {
	return m.sent.add(fn)
}

func (m *Manager) OnTyping(fn func(proto.TypingStatus)) func() {
	return m.typing.add(fn)
}

func (m *Manager) OnMessageRead(fn func(proto.MessageReadStatus)) func() {
	return m.read.add(fn)
}

func (m *Manager) OnFriendRequest(fn func(proto.FriendRequest)) func() {
	return m.friendReqs.add(fn)
}

// OnError receives error frames, such as a rejected message.
func (m *Manager) OnError(fn func(proto.Error)) func() {
	return m.errs.add(fn)
}

func (m *Manager) OnStateChange(fn func(State)) func() {
	return m.states.add(fn)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials the server and announces the user. It returns once the server
// sent the online snapshot, so messages sent right after Connect reach a
// registered session. A failed first attempt is retried with the same backoff
// as a dropped connection; later drops are retried in the background.
// Calling Connect on an active manager is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state.active() {
		m.mu.Unlock()
		return nil
	}
	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.stop, m.done = stop, done
	m.state = StateConnecting
	m.mu.Unlock()
	m.states.emit(StateConnecting)

	dialCtx, cancelDial := context.WithCancel(ctx)
	unhook := context.AfterFunc(runCtx, cancelDial)
	conn, pending, err := m.dial(dialCtx)
	if err != nil && !rejected(err) && dialCtx.Err() == nil {
		m.log.Warn().Err(err).Msg("connect failed")
		conn, pending, err = m.retry(dialCtx)
	}
	unhook()
	cancelDial()

	if err != nil {
		stop()
		close(done)
		m.setState(StateDisconnected)
		return err
	}
	if !m.attach(conn, pending) {
		conn.CloseNow()
		stop()
		close(done)
		return ErrNotConnected
	}

	go m.run(runCtx, conn, done)
	return nil
}

// Close tears the connection down and stops reconnecting. Safe to call more
// than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosed
	conn, stop, done := m.conn, m.stop, m.done
	m.mu.Unlock()
	m.states.emit(StateClosed)

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	if stop != nil {
		stop()
	}
	if done != nil {
		<-done
	}
	return nil
}

// Send submits a direct message. The server answers with message_sent or an error event.
func (m *Manager) Send(ctx context.Context, receiverID int64, text string) error {
	return m.sendFrame(ctx, proto.InboundTypeNewMessage, proto.NewMessageData{
		SenderID:   m.opts.UserID,
		ReceiverID: receiverID,
		Text:       text,
	})
}

// SendTyping starts or stops the typing indicator shown to receiverID.
func (m *Manager) SendTyping(ctx context.Context, receiverID int64, isTyping bool) error {
	return m.sendFrame(ctx, proto.InboundTypeTypingStart, proto.TypingData{
		UserID:     m.opts.UserID,
		ReceiverID: receiverID,
		IsTyping:   isTyping,
	})
}

// MarkRead tells senderID that messageID was read.
func (m *Manager) MarkRead(ctx context.Context, messageID string, senderID int64) error {
	return m.sendFrame(ctx, proto.InboundTypeMessageRead, proto.MessageReadData{
		MessageID: messageID,
		SenderID:  senderID,
	})
}

// Logout announces the explicit logout and closes the manager.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.sendFrame(ctx, proto.InboundTypeUserOffline, proto.UserOfflineData{UserID: m.opts.UserID})
	if err != nil && !errors.Is(err, ErrNotConnected) {
		m.log.Debug().Err(err).Msg("logout frame not sent")
	}
	return m.Close()
}

func (m *Manager) sendFrame(ctx context.Context, typ string, payload any) error {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}
	frame, err := proto.NewInbound(typ, payload)
	if err != nil {
		return err
	}
	return write(ctx, conn, frame)
}

// dial opens a transport and completes the handshake. The frames read while
// waiting for initial_online_users are returned for dispatch after attach.
func (m *Manager) dial(ctx context.Context) (*websocket.Conn, []proto.Outbound, error) {
	header := stdhttp.Header{}
	if m.opts.Token != "" {
		header.Set("Authorization", "Bearer "+m.opts.Token)
	}
	conn, _, err := websocket.Dial(ctx, m.opts.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", m.opts.URL, err)
	}

	hello, err := proto.NewInbound(proto.InboundTypeUserConnected, proto.UserConnectedData{
		UserID:   m.opts.UserID,
		Token:    m.opts.Token,
		Protocol: proto.ProtocolVersion,
	})
	if err == nil {
		err = write(ctx, conn, hello)
	}
	var pending []proto.Outbound
	if err == nil {
		pending, err = awaitSnapshot(ctx, conn)
	}
	if err != nil {
		conn.CloseNow()
		return nil, nil, fmt.Errorf("handshake: %w", err)
	}
	return conn, pending, nil
}

// awaitSnapshot reads until initial_online_users, which the server sends once
// the session is registered with the hub.
func awaitSnapshot(ctx context.Context, conn *websocket.Conn) ([]proto.Outbound, error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	var frames []proto.Outbound
	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return nil, err
		}
		if out.Type == proto.OutboundTypeError {
			rej := &RejectedError{Code: "unknown"}
			if out.Error != nil {
				rej.Code, rej.Msg = out.Error.Code, out.Error.Msg
			}
			return nil, rej
		}
		frames = append(frames, out)
		if out.Event == proto.EventInitialOnlineUsers {
			return frames, nil
		}
	}
}

// rejected reports whether err means the server refused this user on purpose.
func rejected(err error) bool {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusPolicyViolation:
		return true
	}
	return false
}

// attach makes conn the current transport unless the manager was closed
// meanwhile, then dispatches the frames read during the handshake.
func (m *Manager) attach(conn *websocket.Conn, pending []proto.Outbound) bool {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	changed := m.state != StateConnected
	m.state = StateConnected
	m.mu.Unlock()
	if changed {
		m.states.emit(StateConnected)
	}
	for i := range pending {
		m.dispatch(&pending[i])
	}
	return true
}

func (m *Manager) detach(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()
	m.states.emit(s)
}

func (m *Manager) closed(ctx context.Context) bool {
	return ctx.Err() != nil || m.State() == StateClosed
}

func (m *Manager) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		err := m.readLoop(ctx, conn)
		m.detach(conn)
		conn.CloseNow()
		if m.closed(ctx) {
			return
		}

		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusPolicyViolation:
			// Ended by the server on purpose: superseded, logged out or rejected.
			m.log.Info().Err(err).Msg("server closed the connection")
			m.setState(StateDisconnected)
			return
		}

		m.log.Warn().Err(err).Msg("connection lost")
		if conn = m.reconnect(ctx); conn == nil {
			return
		}
	}
}

// reconnect replaces a dropped transport. Returns nil when it gave up or the
// manager was closed.
func (m *Manager) reconnect(ctx context.Context) *websocket.Conn {
	conn, pending, err := m.retry(ctx)
	if err != nil {
		if !m.closed(ctx) {
			m.setState(StateDisconnected)
		}
		return nil
	}
	if !m.attach(conn, pending) {
		conn.CloseNow()
		return nil
	}
	return conn
}

// retry dials with exponential backoff until a handshake completes, the
// server rejects the user or MaxReconnectAttempts is used up.
func (m *Manager) retry(ctx context.Context) (*websocket.Conn, []proto.Outbound, error) {
	m.setState(StateReconnecting)
	var err error
	for attempt := 1; attempt <= m.opts.MaxReconnectAttempts; attempt++ {
		delay := backoff(m.opts.ReconnectDelay, m.opts.MaxReconnectDelay, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, ctx.Err()
		case <-timer.C:
		}

		conn, pending, dialErr := m.dial(ctx)
		if dialErr == nil {
			m.log.Info().Int("attempt", attempt).Msg("connected after retry")
			return conn, pending, nil
		}
		err = dialErr
		m.log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("reconnect failed")
		if rejected(err) {
			return nil, nil, err
		}
	}

	m.log.Warn().Int("attempts", m.opts.MaxReconnectAttempts).Msg("giving up reconnecting")
	return nil, nil, fmt.Errorf("gave up after %d attempts: %w", m.opts.MaxReconnectAttempts, err)
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return err
		}
		m.dispatch(&out)
	}
}

func (m *Manager) dispatch(out *proto.Outbound) {
	if out.Type == proto.OutboundTypeError {
		if out.Error != nil {
			m.errs.emit(*out.Error)
		}
		return
	}

	var err error
	switch out.Event {
	case proto.EventInitialOnlineUsers:
		var ids []int64
		if err = proto.DecodeData(out.Data, &ids); err == nil {
			m.initialOnline.emit(ids)
		}
	case proto.EventUserStatusChange:
		var v proto.UserStatusChange
		if err = proto.DecodeData(out.Data, &v); err == nil {
			m.status.emit(v)
		}
	case proto.EventTypingStatus:
		var v proto.TypingStatus
		if err = proto.DecodeData(out.Data, &v); err == nil {
			m.typing.emit(v)
		}
	case proto.EventReceiveMessage:
		var v proto.Message
		if err = proto.DecodeData(out.Data, &v); err == nil {
			m.received.emit(v)
		}
	case proto.EventMessageSent:
		var v proto.Message
		if err = proto.DecodeData(out.Data, &v); err == nil {
			m.sent.emit(v)
		}
	case proto.EventMessageReadStatus:
		var v proto.MessageReadStatus
		if err = proto.DecodeData(out.Data, &v); err == nil {
			m.read.emit(v)
		}
	case proto.EventFriendRequest:
		var v proto.FriendRequest
		if err = proto.DecodeData(out.Data, &v); err == nil {
			m.friendReqs.emit(v)
		}
	default:
		m.log.Debug().Str("event", out.Event).Msg("ignoring unknown event")
	}
	if err != nil {
		m.log.Warn().Err(err).Str("event", out.Event).Msg("decode event")
	}
}

func write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

// backoff returns base * 2^(attempt-1), capped at limit.
func backoff(base, limit time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return min(d, limit)
}
