package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/kinchat-server/internal/auth"
	"github.com/vovakirdan/kinchat-server/internal/config"
	"github.com/vovakirdan/kinchat-server/internal/core"
	"github.com/vovakirdan/kinchat-server/internal/service/friends"
	"github.com/vovakirdan/kinchat-server/internal/service/messages"
	"github.com/vovakirdan/kinchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/kinchat-server/internal/transport/http"
)

type testStack struct {
	ts    *httptest.Server
	wsURL string
}

// newTestStack runs the real server over an in-memory store.
func newTestStack(t *testing.T) *testStack {
	t.Helper()

	cfg := config.Default()
	cfg.Presence.TypingTimeout = 300 * time.Millisecond

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
	friendsService := friends.New(st)

	logger := zerolog.Nop()
	hub := core.NewHub(st, core.Options{
		Policy:        friendsService,
		LastSeen:      st,
		TypingTimeout: cfg.Presence.TypingTimeout,
		Logger:        &logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	handler := transporthttp.NewRouter(transporthttp.Deps{
		Hub:      hub,
		Auth:     authService,
		Users:    st,
		LastSeen: st,
		Friends:  friendsService,
		Messages: messages.New(st),
	}, &cfg, &logger)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	return &testStack{ts: ts, wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"}
}

func (s *testStack) signup(t *testing.T, username string) (*API, *AuthResult) {
	t.Helper()
	api := NewAPI(s.ts.URL, s.ts.Client())
	res, err := api.Register(context.Background(), username, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return api, res
}

// manager builds a manager for the account without connecting it.
func (s *testStack) manager(t *testing.T, res *AuthResult) *Manager {
	t.Helper()
	m := NewManager(Options{
		URL:            s.wsURL,
		UserID:         res.User.ID,
		Token:          res.Token,
		ReconnectDelay: 20 * time.Millisecond,
	})
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func connect(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

// feed returns a buffered channel filled by a subscription.
func feed[T any](subscribe func(func(T)) func()) <-chan T {
	ch := make(chan T, 64)
	subscribe(func(v T) {
		select {
		case ch <- v:
		default:
		}
	})
	return ch
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		var zero T
		return zero
	}
}

// recvMatch skips values until match returns true.
func recvMatch[T any](t *testing.T, ch <-chan T, match func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-ch:
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for matching event")
			var zero T
			return zero
		}
	}
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state %s, want %s", m.State(), want)
}
