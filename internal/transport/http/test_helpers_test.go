package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/kinchat-server/internal/auth"
	"github.com/vovakirdan/kinchat-server/internal/config"
	"github.com/vovakirdan/kinchat-server/internal/core"
	"github.com/vovakirdan/kinchat-server/internal/proto"
	"github.com/vovakirdan/kinchat-server/internal/service/friends"
	"github.com/vovakirdan/kinchat-server/internal/service/messages"
	"github.com/vovakirdan/kinchat-server/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store *sqlite.SQLiteStore
	auth  *auth.Service
}

type testUser struct {
	id    int64
	token string
}

// newTestEnv starts the full HTTP stack over an in-memory store.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Presence.TypingTimeout = 300 * time.Millisecond
	cfg.WS.HandshakeTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      time.Hour,
	})
	friendsService := friends.New(st, friends.WithFriendsOnly(cfg.Messaging.FriendsOnly))

	logger := zerolog.Nop()
	hub := core.NewHub(st, core.Options{
		Policy:        friendsService,
		LastSeen:      st,
		TypingTimeout: cfg.Presence.TypingTimeout,
		MaxTextLength: cfg.Messaging.MaxTextLength,
		Logger:        &logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	handler := NewRouter(Deps{
		Hub:      hub,
		Auth:     authService,
		Users:    st,
		LastSeen: st,
		Friends:  friendsService,
		Messages: messages.New(st),
	}, &cfg, &logger)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: st, auth: authService}
}

func (e *testEnv) register(t *testing.T, username string) testUser {
	t.Helper()
	res, err := e.auth.Register(context.Background(), username, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return testUser{id: res.User.ID, token: res.Token}
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// dialRaw opens a socket without performing the handshake.
func (e *testEnv) dialRaw(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, e.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// connect performs the handshake and returns the initial online snapshot.
func (e *testEnv) connect(t *testing.T, ctx context.Context, u testUser) (*websocket.Conn, []int64) {
	t.Helper()
	conn := e.dialRaw(t, ctx)
	send(t, ctx, conn, proto.InboundTypeUserConnected, proto.UserConnectedData{
		UserID:   u.id,
		Token:    u.token,
		Protocol: proto.ProtocolVersion,
	})

	out := readEvent(t, ctx, conn, proto.EventInitialOnlineUsers)
	var online []int64
	if err := json.Unmarshal(out.Data, &online); err != nil {
		t.Fatalf("decode initial_online_users: %v", err)
	}
	return conn, online
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	in, err := proto.NewInbound(typ, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, in); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readEvent reads frames until the named event arrives. Use "error" to wait for an error frame.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, name string) proto.Outbound {
	t.Helper()
	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", name, err)
		}
		if name == proto.OutboundTypeError && out.Type == proto.OutboundTypeError {
			return out
		}
		if out.Type == proto.OutboundTypeEvent && out.Event == name {
			return out
		}
	}
}

func decode[T any](t *testing.T, out proto.Outbound) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(out.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", out.Event, err)
	}
	return v
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := stdhttp.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
