package core

import (
	"sync"
	"time"

	"github.com/vovakirdan/kinchat-server/internal/metrics"
)

// DefaultTypingTimeout is how long a typing indicator stays up without a new start signal.
const DefaultTypingTimeout = 3 * time.Second

type typingKey struct {
	from int64
	to   int64
}

type typingEntry struct {
	gen   uint64
	timer *time.Timer
}

// Typing tracks the per (sender, receiver) typing flag with auto-expiry.
//
// Every armed timer carries the generation it was armed with; an expiry whose
// generation no longer matches the entry was superseded and does nothing.
// Notifications are emitted while holding mu, so start/stop for one pair
// reach the receiver in causal order.
type Typing struct {
	registry *Registry
	timeout  time.Duration

	mu      sync.Mutex
	gen     uint64
	entries map[typingKey]*typingEntry
}

// NewTyping builds a coordinator. A non-positive timeout selects DefaultTypingTimeout.
func NewTyping(registry *Registry, timeout time.Duration) *Typing {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &Typing{
		registry: registry,
		timeout:  timeout,
		entries:  make(map[typingKey]*typingEntry),
	}
}

// Start handles a "typing start" signal from -> to.
func (t *Typing) Start(from, to int64) {
	key := typingKey{from: from, to: to}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	gen := t.gen

	if entry, ok := t.entries[key]; ok {
		// Re-arm without resending the "true" notification.
		entry.timer.Stop()
		entry.gen = gen
		entry.timer = time.AfterFunc(t.timeout, func() { t.expire(key, gen) })
		return
	}

	t.entries[key] = &typingEntry{
		gen:   gen,
		timer: time.AfterFunc(t.timeout, func() { t.expire(key, gen) }),
	}
	t.notify(key, true)
}

// Stop handles an explicit "typing stop" signal. Stopping an idle pair is a no-op.
func (t *Typing) Stop(from, to int64) {
	key := typingKey{from: from, to: to}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(t.entries, key)
	t.notify(key, false)
}

// StopAllFrom ends every typing indicator the given user has active.
func (t *Typing) StopAllFrom(from int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, entry := range t.entries {
		if key.from != from {
			continue
		}
		entry.timer.Stop()
		delete(t.entries, key)
		t.notify(key, false)
	}
}

// Active reports whether from is currently marked as typing to to.
func (t *Typing) Active(from, to int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[typingKey{from: from, to: to}]
	return ok
}

func (t *Typing) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok || entry.gen != gen {
		return
	}
	delete(t.entries, key)
	t.notify(key, false)
}

// notify must be called with mu held.
func (t *Typing) notify(key typingKey, typing bool) {
	receiver, ok := t.registry.Lookup(key.to)
	if !ok {
		return
	}
	state := "stop"
	if typing {
		state = "start"
	}
	if receiver.Send(&Event{Kind: EventTypingStatus, Typing: &TypingStatus{UserID: key.from, IsTyping: typing}}) {
		metrics.TypingNotifications.WithLabelValues(state).Inc()
	} else {
		metrics.DroppedEvents.Inc()
	}
}
