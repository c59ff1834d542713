package client

import (
	"cmp"
	"slices"
	"sync"

	"github.com/vovakirdan/kinchat-server/internal/proto"
)

// Timeline is the ordered conversation between the local user and one peer.
// History pages and live events may arrive in any order and more than once;
// the timeline keeps one entry per message ID ordered by creation time, then ID.
type Timeline struct {
	userID int64
	peerID int64

	mu    sync.Mutex
	byID  map[string]*proto.Message
	order []*proto.Message
}

// NewTimeline builds an empty conversation view.
func NewTimeline(userID, peerID int64) *Timeline {
	return &Timeline{
		userID: userID,
		peerID: peerID,
		byID:   make(map[string]*proto.Message),
	}
}

// Merge adds messages that belong to this conversation and returns how many
// were new. Known IDs only upgrade the read flag and the server timestamp.
func (t *Timeline) Merge(msgs ...proto.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0
	for _, m := range msgs {
		if m.ID == "" || !t.belongs(m) {
			continue
		}
		if known, ok := t.byID[m.ID]; ok {
			known.Read = known.Read || m.Read
			if known.ServerTimestamp == 0 {
				known.ServerTimestamp = m.ServerTimestamp
			}
			continue
		}
		cp := m
		t.byID[m.ID] = &cp
		i, _ := slices.BinarySearchFunc(t.order, &cp, compareMessages)
		t.order = slices.Insert(t.order, i, &cp)
		added++
	}
	return added
}

// MarkRead flags messageID as read. Returns false for unknown IDs.
func (t *Timeline) MarkRead(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.byID[messageID]
	if !ok {
		return false
	}
	m.Read = true
	return true
}

// Messages returns a copy of the ordered conversation.
func (t *Timeline) Messages() []proto.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]proto.Message, len(t.order))
	for i, m := range t.order {
		out[i] = *m
	}
	return out
}

// Unread counts the peer's messages not yet read by the local user.
func (t *Timeline) Unread() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, m := range t.order {
		if m.SenderID == t.peerID && !m.Read {
			n++
		}
	}
	return n
}

// Bind feeds live events from m into the timeline until the returned func is called.
func (t *Timeline) Bind(m *Manager) func() {
	unsubs := []func(){
		m.OnMessage(func(msg proto.Message) { t.Merge(msg) }),
		m.OnMessageSent(func(msg proto.Message) { t.Merge(msg) }),
		m.OnMessageRead(func(r proto.MessageReadStatus) { t.MarkRead(r.MessageID) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (t *Timeline) belongs(m proto.Message) bool {
	return (m.SenderID == t.userID && m.ReceiverID == t.peerID) ||
		(m.SenderID == t.peerID && m.ReceiverID == t.userID)
}

func compareMessages(a, b *proto.Message) int {
	if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
