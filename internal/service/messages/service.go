// Package messages serves direct-message history and durable read flags.
package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/kinchat-server/internal/store"
)

// DefaultHistoryLimit caps a history page when the caller asks for none.
const DefaultHistoryLimit = 100

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotReceiver     = errors.New("only the receiver can mark a message as read")
	ErrInvalidPeer     = errors.New("invalid conversation peer")
)

// Service reads conversations and flips read flags.
type Service struct {
	store store.MessageStore
}

// New creates a message service.
func New(st store.MessageStore) *Service {
	return &Service{store: st}
}

// History returns the conversation between userID and peerID in creation
// order and marks the peer's messages to userID as read. The returned
// records carry the read flags as they were before the call.
func (s *Service) History(ctx context.Context, userID, peerID int64, limit int, before *time.Time) ([]*store.DirectMessage, error) {
	if peerID <= 0 || peerID == userID {
		return nil, ErrInvalidPeer
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	msgs, err := s.store.ListConversation(ctx, userID, peerID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}

	if _, err := s.store.MarkRead(ctx, store.ReadFilter{SenderID: peerID, ReceiverID: userID}); err != nil {
		return nil, fmt.Errorf("mark conversation read: %w", err)
	}
	return msgs, nil
}

// MarkRead flags messageID as read on behalf of userID, who must be its
// receiver. It returns the message so the caller can notify the sender.
func (s *Service) MarkRead(ctx context.Context, userID int64, messageID string) (*store.DirectMessage, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg.ReceiverID != userID {
		return nil, ErrNotReceiver
	}

	if _, err := s.store.MarkRead(ctx, store.ReadFilter{ID: messageID}); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	msg.Read = true
	return msg, nil
}
