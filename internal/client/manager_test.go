package client

import (
	"context"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/kinchat-server/internal/proto"
)

func TestManagerEndToEnd(t *testing.T) {
	stack := newTestStack(t)
	_, aliceAuth := stack.signup(t, "alice")
	_, bobAuth := stack.signup(t, "bob")
	alice := stack.manager(t, aliceAuth)
	bob := stack.manager(t, bobAuth)

	aliceStatus := feed(alice.OnUserStatus)
	aliceSent := feed(alice.OnMessageSent)
	aliceTyping := feed(alice.OnTyping)
	aliceRead := feed(alice.OnMessageRead)
	bobSnapshot := feed(bob.OnInitialOnlineUsers)
	bobMessages := feed(bob.OnMessage)

	connect(t, alice)
	connect(t, bob)
	if alice.State() != StateConnected {
		t.Fatalf("expected connected, got %s", alice.State())
	}

	snapshot := recv(t, bobSnapshot)
	if !slices.Contains(snapshot, aliceAuth.User.ID) || !slices.Contains(snapshot, bobAuth.User.ID) {
		t.Fatalf("snapshot %v must contain both users", snapshot)
	}
	recvMatch(t, aliceStatus, func(c proto.UserStatusChange) bool {
		return c.UserID == bobAuth.User.ID && c.Status == "online"
	})

	ctx := context.Background()
	if err := alice.Send(ctx, bobAuth.User.ID, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := recv(t, bobMessages)
	ack := recv(t, aliceSent)
	if got.Text != "hello" || got.ID != ack.ID || got.ServerTimestamp != ack.ServerTimestamp {
		t.Fatalf("delivery %+v does not match ack %+v", got, ack)
	}

	if err := bob.SendTyping(ctx, aliceAuth.User.ID, true); err != nil {
		t.Fatalf("typing: %v", err)
	}
	typing := recv(t, aliceTyping)
	if typing.UserID != bobAuth.User.ID || !typing.IsTyping {
		t.Fatalf("unexpected typing %+v", typing)
	}

	if err := bob.MarkRead(ctx, got.ID, aliceAuth.User.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if r := recv(t, aliceRead); r.MessageID != got.ID {
		t.Fatalf("unexpected receipt %+v", r)
	}

	if err := bob.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	recvMatch(t, aliceStatus, func(c proto.UserStatusChange) bool {
		return c.UserID == bobAuth.User.ID && c.Status == "offline" && c.LastSeen > 0
	})
	if bob.State() != StateClosed {
		t.Fatalf("expected closed, got %s", bob.State())
	}
	if err := bob.Send(ctx, aliceAuth.User.ID, "late"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := bob.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestManagerErrorsAndLogout(t *testing.T) {
	stack := newTestStack(t)
	_, aliceAuth := stack.signup(t, "alice")
	_, bobAuth := stack.signup(t, "bob")
	alice := stack.manager(t, aliceAuth)
	bob := stack.manager(t, bobAuth)

	aliceErrs := feed(alice.OnError)
	bobStatus := feed(bob.OnUserStatus)
	connect(t, bob)
	connect(t, alice)

	if err := alice.Send(context.Background(), bobAuth.User.ID, "   "); err != nil {
		t.Fatalf("send: %v", err)
	}
	if e := recv(t, aliceErrs); e.Code != "empty_message" {
		t.Fatalf("expected empty_message, got %+v", e)
	}

	if err := alice.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	recvMatch(t, bobStatus, func(c proto.UserStatusChange) bool {
		return c.UserID == aliceAuth.User.ID && c.Status == "offline"
	})
	if alice.State() != StateClosed {
		t.Fatalf("expected closed after logout, got %s", alice.State())
	}
}

func TestManagerSupersededSessionStaysDown(t *testing.T) {
	stack := newTestStack(t)
	_, auth := stack.signup(t, "alice")
	first := stack.manager(t, auth)
	second := stack.manager(t, auth)

	connect(t, first)
	connect(t, second)

	waitState(t, first, StateDisconnected)
	if second.State() != StateConnected {
		t.Fatalf("newest session must stay connected, got %s", second.State())
	}
}

func TestManagerSendRightAfterConnectIsDelivered(t *testing.T) {
	stack := newTestStack(t)
	_, aliceAuth := stack.signup(t, "alice")
	_, bobAuth := stack.signup(t, "bob")
	bob := stack.manager(t, bobAuth)
	bobMessages := feed(bob.OnMessage)
	connect(t, bob)

	for i := 0; i < 5; i++ {
		alice := stack.manager(t, aliceAuth)
		snapshot := feed(alice.OnInitialOnlineUsers)
		sent := feed(alice.OnMessageSent)

		connect(t, alice)
		select {
		case <-snapshot:
		default:
			t.Fatalf("round %d: snapshot must be delivered before Connect returns", i)
		}
		if err := alice.Send(context.Background(), bobAuth.User.ID, "right away"); err != nil {
			t.Fatalf("round %d: send: %v", i, err)
		}

		got := recv(t, bobMessages)
		ack := recv(t, sent)
		if got.ID != ack.ID || got.SenderID != aliceAuth.User.ID {
			t.Fatalf("round %d: delivery %+v does not match ack %+v", i, got, ack)
		}
		if err := alice.Close(); err != nil {
			t.Fatalf("round %d: close: %v", i, err)
		}
	}
}

func TestManagerRejectedTokenIsNotRetried(t *testing.T) {
	stack := newTestStack(t)
	m := NewManager(Options{URL: stack.wsURL, UserID: 1, Token: "bogus", ReconnectDelay: 10 * time.Millisecond})
	t.Cleanup(func() { _ = m.Close() })
	states := feed(m.OnStateChange)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := m.Connect(ctx)

	var rej *RejectedError
	if !errors.As(err, &rej) || rej.Code != "unauthorized" {
		t.Fatalf("expected unauthorized rejection, got %v", err)
	}
	if s := recv(t, states); s != StateConnecting {
		t.Fatalf("expected connecting first, got %s", s)
	}
	if s := recv(t, states); s != StateDisconnected {
		t.Fatalf("rejected handshake must not be retried, got %s", s)
	}
}

func TestManagerCloseDuringHandshakeFailsConnect(t *testing.T) {
	var dials atomic.Int32
	ts := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		dials.Add(1)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		var hello proto.Inbound
		_ = wsjson.Read(r.Context(), conn, &hello)
		_ = conn.Close(websocket.StatusNormalClosure, "session ended")
	}))
	t.Cleanup(ts.Close)

	m := NewManager(Options{URL: "ws" + strings.TrimPrefix(ts.URL, "http"), UserID: 1, ReconnectDelay: 5 * time.Millisecond})
	t.Cleanup(func() { _ = m.Close() })

	err := m.Connect(context.Background())
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Fatalf("expected the close to fail Connect, got %v", err)
	}
	if m.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", m.State())
	}
	if err := m.Send(context.Background(), 2, "hi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if n := dials.Load(); n != 1 {
		t.Fatalf("closed handshake must not be retried, saw %d dials", n)
	}
}

func TestManagerConnectFailure(t *testing.T) {
	ts := httptest.NewServer(stdhttp.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ts.Close()

	m := NewManager(Options{URL: url, UserID: 1, ReconnectDelay: 5 * time.Millisecond, MaxReconnectAttempts: 2})
	states := feed(m.OnStateChange)
	if err := m.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}

	var seq []State
	for len(seq) < 3 {
		seq = append(seq, recv(t, states))
	}
	want := []State{StateConnecting, StateReconnecting, StateDisconnected}
	if !slices.Equal(seq, want) {
		t.Fatalf("state sequence %v, want %v", seq, want)
	}
}

func TestManagerFirstConnectIsRetried(t *testing.T) {
	fs := newFlakyServer(t, func(n int, conn *websocket.Conn) {
		holdOpen(conn)
	}, func(n int) bool { return n <= 2 })

	m := NewManager(Options{URL: fs.url(), UserID: 1, ReconnectDelay: 5 * time.Millisecond})
	t.Cleanup(func() { _ = m.Close() })
	states := feed(m.OnStateChange)

	connect(t, m)

	var seq []State
	for len(seq) < 3 {
		seq = append(seq, recv(t, states))
	}
	want := []State{StateConnecting, StateReconnecting, StateConnected}
	if !slices.Equal(seq, want) {
		t.Fatalf("state sequence %v, want %v", seq, want)
	}
	if dials, _ := fs.stats(); dials != 3 {
		t.Fatalf("expected two failed dials and one success, got %d", dials)
	}
}

// flakyServer speaks just enough of the protocol to exercise reconnects.
type flakyServer struct {
	ts *httptest.Server

	// behave runs after the handshake of the n-th connection (1-based).
	behave func(n int, conn *websocket.Conn)
	// reject makes the n-th dial fail with 503.
	reject func(n int) bool

	mu        sync.Mutex
	dials     int
	active    int
	maxActive int
}

func newFlakyServer(t *testing.T, behave func(int, *websocket.Conn), reject func(int) bool) *flakyServer {
	t.Helper()
	fs := &flakyServer{behave: behave, reject: reject}
	fs.ts = httptest.NewServer(stdhttp.HandlerFunc(fs.serve))
	t.Cleanup(fs.ts.Close)
	return fs
}

func (fs *flakyServer) url() string {
	return "ws" + strings.TrimPrefix(fs.ts.URL, "http")
}

func (fs *flakyServer) serve(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	fs.mu.Lock()
	fs.dials++
	n := fs.dials
	fs.mu.Unlock()

	if fs.reject != nil && fs.reject(n) {
		w.WriteHeader(stdhttp.StatusServiceUnavailable)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	fs.mu.Lock()
	fs.active++
	fs.maxActive = max(fs.maxActive, fs.active)
	fs.mu.Unlock()
	defer func() {
		fs.mu.Lock()
		fs.active--
		fs.mu.Unlock()
	}()

	var hello proto.Inbound
	if err := wsjson.Read(r.Context(), conn, &hello); err != nil || hello.Type != proto.InboundTypeUserConnected {
		conn.CloseNow()
		return
	}
	snapshot, _ := proto.NewEvent(proto.EventInitialOnlineUsers, []int64{1})
	_ = wsjson.Write(r.Context(), conn, snapshot)

	fs.behave(n, conn)
}

func (fs *flakyServer) stats() (dials, maxActive int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dials, fs.maxActive
}

// holdOpen keeps the connection until the client leaves.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(context.Background()); err != nil {
			return
		}
	}
}

func TestManagerReconnectsAfterDrop(t *testing.T) {
	fs := newFlakyServer(t, func(n int, conn *websocket.Conn) {
		if n == 1 {
			conn.CloseNow()
			return
		}
		holdOpen(conn)
	}, nil)

	m := NewManager(Options{URL: fs.url(), UserID: 1, ReconnectDelay: 10 * time.Millisecond})
	t.Cleanup(func() { _ = m.Close() })
	states := feed(m.OnStateChange)

	connect(t, m)

	var seq []State
	for len(seq) < 4 {
		seq = append(seq, recv(t, states))
	}
	want := []State{StateConnecting, StateConnected, StateReconnecting, StateConnected}
	if !slices.Equal(seq, want) {
		t.Fatalf("state sequence %v, want %v", seq, want)
	}
	if _, maxActive := fs.stats(); maxActive > 1 {
		t.Fatalf("at most one transport may be open, saw %d", maxActive)
	}
}

func TestManagerGivesUpAfterMaxAttempts(t *testing.T) {
	fs := newFlakyServer(t, func(n int, conn *websocket.Conn) {
		conn.CloseNow()
	}, func(n int) bool { return n > 1 })

	m := NewManager(Options{
		URL:                  fs.url(),
		UserID:               1,
		ReconnectDelay:       5 * time.Millisecond,
		MaxReconnectDelay:    20 * time.Millisecond,
		MaxReconnectAttempts: 3,
	})
	t.Cleanup(func() { _ = m.Close() })

	connect(t, m)
	waitState(t, m, StateDisconnected)

	if dials, _ := fs.stats(); dials != 4 {
		t.Fatalf("expected 1 dial plus 3 retries, got %d", dials)
	}
}

func TestManagerCloseStopsReconnecting(t *testing.T) {
	fs := newFlakyServer(t, func(n int, conn *websocket.Conn) {
		conn.CloseNow()
	}, func(n int) bool { return n > 1 })

	m := NewManager(Options{URL: fs.url(), UserID: 1, ReconnectDelay: time.Hour})
	connect(t, m)
	waitState(t, m, StateReconnecting)

	done := make(chan struct{})
	go func() {
		_ = m.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("close blocked on the pending reconnect")
	}
	if m.State() != StateClosed {
		t.Fatalf("expected closed, got %s", m.State())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	var l listeners[int]
	var got []int
	unsub := l.add(func(v int) { got = append(got, v) })
	l.add(func(int) {})

	l.emit(1)
	unsub()
	unsub()
	l.emit(2)

	if !slices.Equal(got, []int{1}) {
		t.Fatalf("unexpected deliveries %v", got)
	}
	if l.len() != 1 {
		t.Fatalf("expected one remaining listener, got %d", l.len())
	}
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 10 * time.Second},
		{30, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := backoff(time.Second, 10*time.Second, tc.attempt); got != tc.want {
			t.Errorf("attempt %d: got %s, want %s", tc.attempt, got, tc.want)
		}
	}
}
