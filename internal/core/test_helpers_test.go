package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/kinchat-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// nextEvent returns the very next event without skipping any.
func nextEvent(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event received")
		return nil
	}
}

// noEvent fails if an event of the given kind arrives within d.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		case <-deadline:
			return
		}
	}
}

func identifiedSession(t *testing.T, userID int64) *Session {
	t.Helper()
	s := NewSession()
	if err := s.Identify(userID); err != nil {
		t.Fatalf("identify %d: %v", userID, err)
	}
	return s
}

type memStore struct {
	mu   sync.Mutex
	msgs []*store.DirectMessage
	fail error
}

func (m *memStore) CreateMessage(_ context.Context, msg *store.DirectMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	cp := *msg
	m.msgs = append(m.msgs, &cp)
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

type policyFunc func(from, to int64) (bool, error)

func (f policyFunc) CanMessage(_ context.Context, from, to int64) (bool, error) {
	return f(from, to)
}

type lastSeenRecorder struct {
	mu   sync.Mutex
	seen map[int64]time.Time
}

func (r *lastSeenRecorder) RecordLastSeen(_ context.Context, userID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[int64]time.Time)
	}
	r.seen[userID] = at
	return nil
}

func (r *lastSeenRecorder) get(userID int64) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.seen[userID]
	return at, ok
}

var errDiskFull = errors.New("disk full")
