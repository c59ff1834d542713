package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/kinchat-server/internal/store"
)

const messageColumns = `id, sender_id, receiver_id, text, is_read, created_at`

func scanMessage(row rowScanner) (*store.DirectMessage, error) {
	var msg store.DirectMessage
	if err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Text, &msg.Read, &msg.CreatedAt); err != nil {
		return nil, err
	}
	return &msg, nil
}

// CreateMessage persists a direct message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.DirectMessage) error {
	if msg.ID == "" {
		return errors.New("message id is required")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO direct_messages (id, sender_id, receiver_id, text, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Text, msg.Read, msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.DirectMessage, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM direct_messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// ListConversation retrieves the messages exchanged between a and b.
func (s *SQLiteStore) ListConversation(ctx context.Context, a, b int64, limit int, before *time.Time) ([]*store.DirectMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM direct_messages
		WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))`
	args := []any{a, b, b, a}
	if before != nil {
		query += ` AND created_at < ?`
		args = append(args, before.UTC())
	}
	if limit <= 0 {
		limit = -1 // no limit
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.DirectMessage, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i := 0; i < len(messages)/2; i++ {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}
	return messages, nil
}

// MarkRead flags unread messages matching filter as read.
func (s *SQLiteStore) MarkRead(ctx context.Context, filter store.ReadFilter) (int64, error) {
	if filter.Empty() {
		return 0, errors.New("mark read: empty filter")
	}

	conds := []string{"is_read = 0"}
	var args []any
	if filter.ID != "" {
		conds = append(conds, "id = ?")
		args = append(args, filter.ID)
	}
	if filter.SenderID != 0 {
		conds = append(conds, "sender_id = ?")
		args = append(args, filter.SenderID)
	}
	if filter.ReceiverID != 0 {
		conds = append(conds, "receiver_id = ?")
		args = append(args, filter.ReceiverID)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE direct_messages SET is_read = 1 WHERE `+strings.Join(conds, " AND "),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return result.RowsAffected()
}
