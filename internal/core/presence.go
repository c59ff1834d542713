package core

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/kinchat-server/internal/metrics"
)

// Presence fans out online/offline transitions to every connected session.
type Presence struct {
	registry *Registry
	log      *zerolog.Logger
}

// NewPresence builds a broadcaster over the given registry.
func NewPresence(registry *Registry, logger *zerolog.Logger) *Presence {
	return &Presence{registry: registry, log: logger}
}

// Online announces that userID came online.
func (p *Presence) Online(userID int64, at time.Time) {
	p.broadcast(&PresenceChange{UserID: userID, Status: StatusOnline, LastSeen: at})
}

// Offline announces that userID went offline at the given time.
func (p *Presence) Offline(userID int64, at time.Time) {
	p.broadcast(&PresenceChange{UserID: userID, Status: StatusOffline, LastSeen: at})
}

// Snapshot unicasts the current online set to s alone.
func (p *Presence) Snapshot(s *Session) {
	ev := &Event{Kind: EventInitialOnlineUsers, OnlineUsers: p.registry.ListOnline()}
	if !s.Send(ev) {
		metrics.DroppedEvents.Inc()
	}
}

func (p *Presence) broadcast(change *PresenceChange) {
	ev := &Event{Kind: EventUserStatusChange, Presence: change}
	dropped := 0
	for _, s := range p.registry.Sessions() {
		if !s.Send(ev) {
			dropped++
		}
	}
	metrics.PresenceTransitions.WithLabelValues(string(change.Status)).Inc()
	if dropped > 0 {
		metrics.DroppedEvents.Add(float64(dropped))
		p.log.Debug().
			Int64("user_id", change.UserID).
			Str("status", string(change.Status)).
			Int("dropped", dropped).
			Msg("presence event dropped for slow sessions")
	}
}
