package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/kinchat-server/internal/metrics"
	"github.com/vovakirdan/kinchat-server/internal/store"
)

const (
	// DefaultMaxTextLength bounds a message body, in runes.
	DefaultMaxTextLength = 2000
	// DefaultPersistTimeout bounds the durable write of one message.
	DefaultPersistTimeout = 5 * time.Second
)

// MessageStore is the durable side of the relay.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *store.DirectMessage) error
}

// Policy decides whether from may message to.
type Policy interface {
	CanMessage(ctx context.Context, from, to int64) (bool, error)
}

// Relay validates, persists and forwards direct messages.
type Relay struct {
	registry       *Registry
	store          MessageStore
	policy         Policy
	maxTextLength  int
	persistTimeout time.Duration
	log            *zerolog.Logger
	now            func() time.Time
}

// NewRelay builds a relay. policy may be nil.
func NewRelay(registry *Registry, st MessageStore, policy Policy, maxTextLength int, persistTimeout time.Duration, logger *zerolog.Logger) *Relay {
	if maxTextLength <= 0 {
		maxTextLength = DefaultMaxTextLength
	}
	if persistTimeout <= 0 {
		persistTimeout = DefaultPersistTimeout
	}
	return &Relay{
		registry:       registry,
		store:          st,
		policy:         policy,
		maxTextLength:  maxTextLength,
		persistTimeout: persistTimeout,
		log:            logger,
		now:            time.Now,
	}
}

// Validate checks a submission without touching the store.
func (r *Relay) Validate(sub Submission) error {
	if sub.SenderID <= 0 || sub.ReceiverID <= 0 {
		return fmt.Errorf("%w: sender and receiver are required", ErrBadRequest)
	}
	if strings.TrimSpace(sub.Text) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(sub.Text) > r.maxTextLength {
		return ErrMessageTooLong
	}
	return nil
}

// Submit persists the message and then delivers it. Nothing is delivered
// unless persistence succeeded. The ack goes to ackTo, or to the sender's
// current session when ackTo is nil.
func (r *Relay) Submit(ctx context.Context, ackTo *Session, sub Submission) (Message, error) {
	if err := r.Validate(sub); err != nil {
		metrics.MessagesRelayed.WithLabelValues("rejected").Inc()
		return Message{}, err
	}

	if r.policy != nil {
		allowed, err := r.policy.CanMessage(ctx, sub.SenderID, sub.ReceiverID)
		if err != nil {
			metrics.MessagesRelayed.WithLabelValues("failed").Inc()
			return Message{}, fmt.Errorf("%w: check policy: %w", ErrPersistFailed, err)
		}
		if !allowed {
			metrics.MessagesRelayed.WithLabelValues("rejected").Inc()
			return Message{}, ErrNotAllowed
		}
	}

	rec := &store.DirectMessage{
		ID:         ulid.Make().String(),
		SenderID:   sub.SenderID,
		ReceiverID: sub.ReceiverID,
		Text:       sub.Text,
		CreatedAt:  r.now().UTC(),
	}

	persistCtx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	err := r.store.CreateMessage(persistCtx, rec)
	cancel()
	if err != nil {
		metrics.MessagesRelayed.WithLabelValues("failed").Inc()
		r.log.Error().Err(err).
			Int64("sender_id", sub.SenderID).
			Int64("receiver_id", sub.ReceiverID).
			Msg("persist message")
		return Message{}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	msg := Message{
		ID:         rec.ID,
		SenderID:   rec.SenderID,
		ReceiverID: rec.ReceiverID,
		Text:       rec.Text,
		Read:       rec.Read,
		CreatedAt:  rec.CreatedAt,
		ServerTS:   r.now().UTC(),
	}

	outcome := "stored_offline"
	if receiver, ok := r.registry.Lookup(msg.ReceiverID); ok {
		delivered := msg
		if receiver.Send(&Event{Kind: EventReceiveMessage, Message: &delivered}) {
			outcome = "delivered"
		} else {
			metrics.DroppedEvents.Inc()
		}
	}
	metrics.MessagesRelayed.WithLabelValues(outcome).Inc()

	if ackTo == nil {
		ackTo, _ = r.registry.Lookup(msg.SenderID)
	}
	if ackTo != nil {
		acked := msg
		if !ackTo.Send(&Event{Kind: EventMessageSent, Message: &acked}) {
			metrics.DroppedEvents.Inc()
		}
	}

	r.log.Debug().
		Str("message_id", msg.ID).
		Int64("sender_id", msg.SenderID).
		Int64("receiver_id", msg.ReceiverID).
		Str("outcome", outcome).
		Msg("message relayed")

	return msg, nil
}
