package core

import "github.com/vovakirdan/kinchat-server/internal/metrics"

// Receipts forwards read acknowledgements to the original sender's session.
// It never touches the durable read flag.
type Receipts struct {
	registry *Registry
}

// NewReceipts builds a read-receipt relay.
func NewReceipts(registry *Registry) *Receipts {
	return &Receipts{registry: registry}
}

// Forward tells senderID that messageID was read. Returns false when the
// sender is offline and the notification was dropped.
func (r *Receipts) Forward(messageID string, senderID int64) bool {
	if messageID == "" || senderID <= 0 {
		return false
	}
	sender, ok := r.registry.Lookup(senderID)
	if !ok || !sender.Send(&Event{Kind: EventMessageReadStatus, MessageID: messageID}) {
		metrics.ReadReceipts.WithLabelValues("dropped").Inc()
		return false
	}
	metrics.ReadReceipts.WithLabelValues("forwarded").Inc()
	return true
}
