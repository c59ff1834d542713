package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/kinchat-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSearchUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	users := []string{"alice", "alex", "alan", "bob", "charlie"}
	for _, u := range users {
		if _, err := s.CreateUser(ctx, u, "hash"); err != nil {
			t.Fatalf("failed to create user %s: %v", u, err)
		}
	}

	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{name: "search 'al'", query: "al", expected: []string{"alan", "alex", "alice"}},
		{name: "search 'li'", query: "li", expected: []string{"alice", "charlie"}},
		{name: "search non-existent", query: "z", expected: []string{}},
		{name: "search is case insensitive for ASCII", query: "Bob", expected: []string{"bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.SearchUsers(ctx, tt.query)
			if err != nil {
				t.Fatalf("SearchUsers failed: %v", err)
			}

			var names []string
			for _, u := range results {
				names = append(names, u.Username)
			}

			if len(results) != len(tt.expected) {
				t.Fatalf("expected %d results, got %d: %v", len(tt.expected), len(results), names)
			}
			for i, name := range names {
				if name != tt.expected[i] {
					t.Errorf("expected %s at index %d, got %s", tt.expected[i], i, name)
				}
			}
		})
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetUserByID(context.Background(), 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLastSeen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	seen, err := s.LastSeen(ctx, user.ID)
	if err != nil {
		t.Fatalf("last seen: %v", err)
	}
	if seen != nil {
		t.Fatalf("expected no last seen for a fresh user, got %v", seen)
	}

	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if err := s.RecordLastSeen(ctx, user.ID, at); err != nil {
		t.Fatalf("record last seen: %v", err)
	}

	seen, err = s.LastSeen(ctx, user.ID)
	if err != nil {
		t.Fatalf("last seen: %v", err)
	}
	if seen == nil || !seen.Equal(at) {
		t.Fatalf("expected %v, got %v", at, seen)
	}

	if err := s.RecordLastSeen(ctx, 999, at); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestFriendLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice, _ := s.CreateUser(ctx, "alice", "hash")
	bob, _ := s.CreateUser(ctx, "bob", "hash")

	req, err := s.CreateFriendRequest(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if req.Status != store.FriendStatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}

	if ok, _ := s.IsFriend(ctx, alice.ID, bob.ID); ok {
		t.Fatalf("pending request must not count as friendship")
	}

	if err := s.UpdateFriendStatus(ctx, alice.ID, bob.ID, store.FriendStatusAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if ok, _ := s.IsFriend(ctx, bob.ID, alice.ID); !ok {
		t.Fatalf("expected friendship in both directions")
	}

	accepted := store.FriendStatusAccepted
	list, err := s.ListFriends(ctx, bob.ID, &accepted)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one friend, got %d (%v)", len(list), err)
	}

	if err := s.DeleteFriendship(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetFriendship(ctx, alice.ID, bob.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestConversationOrderingAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := []*store.DirectMessage{
		{ID: "01A", SenderID: 1, ReceiverID: 2, Text: "first", CreatedAt: base},
		{ID: "01B", SenderID: 2, ReceiverID: 1, Text: "second", CreatedAt: base.Add(1500 * time.Millisecond)},
		{ID: "01C", SenderID: 1, ReceiverID: 2, Text: "third", CreatedAt: base.Add(2 * time.Second)},
		{ID: "01D", SenderID: 1, ReceiverID: 3, Text: "other chat", CreatedAt: base.Add(3 * time.Second)},
	}
	// Insert out of order; the store must sort by creation time.
	for _, i := range []int{2, 0, 3, 1} {
		if err := s.CreateMessage(ctx, msgs[i]); err != nil {
			t.Fatalf("create message %s: %v", msgs[i].ID, err)
		}
	}

	all, err := s.ListConversation(ctx, 2, 1, 0, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(all) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(all))
	}
	for i, m := range all {
		if m.Text != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], m.Text)
		}
	}

	latest, err := s.ListConversation(ctx, 1, 2, 2, nil)
	if err != nil {
		t.Fatalf("list with limit: %v", err)
	}
	if len(latest) != 2 || latest[0].Text != "second" || latest[1].Text != "third" {
		t.Fatalf("expected the two most recent in order, got %+v", latest)
	}

	before := base.Add(2 * time.Second)
	older, err := s.ListConversation(ctx, 1, 2, 10, &before)
	if err != nil {
		t.Fatalf("list before: %v", err)
	}
	if len(older) != 2 || older[1].Text != "second" {
		t.Fatalf("expected messages older than third, got %+v", older)
	}
}

func TestMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, m := range []*store.DirectMessage{
		{ID: "m1", SenderID: 1, ReceiverID: 2, Text: "a"},
		{ID: "m2", SenderID: 1, ReceiverID: 2, Text: "b"},
		{ID: "m3", SenderID: 2, ReceiverID: 1, Text: "c"},
	} {
		m.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		if err := s.CreateMessage(ctx, m); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	n, err := s.MarkRead(ctx, store.ReadFilter{SenderID: 1, ReceiverID: 2})
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 updated, got %d", n)
	}

	// Already read messages are not counted again.
	n, err = s.MarkRead(ctx, store.ReadFilter{ID: "m1"})
	if err != nil || n != 0 {
		t.Fatalf("expected 0 updated for read message, got %d (%v)", n, err)
	}

	m3, err := s.GetMessage(ctx, "m3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m3.Read {
		t.Fatalf("message in the other direction must stay unread")
	}

	if _, err := s.MarkRead(ctx, store.ReadFilter{}); err == nil {
		t.Fatalf("expected error for empty filter")
	}
}
