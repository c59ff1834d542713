package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vovakirdan/kinchat-server/internal/store"
)

const friendColumns = `id, user_id, friend_id, status, created_at, updated_at`

func scanFriend(row rowScanner) (*store.Friend, error) {
	var friend store.Friend
	var status string
	if err := row.Scan(&friend.ID, &friend.UserID, &friend.FriendID, &status, &friend.CreatedAt, &friend.UpdatedAt); err != nil {
		return nil, err
	}
	friend.Status = store.FriendStatus(status)
	return &friend, nil
}

// CreateFriendRequest creates a new friend request (pending status).
func (s *SQLiteStore) CreateFriendRequest(ctx context.Context, userID, friendID int64) (*store.Friend, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO friends (user_id, friend_id, status) VALUES (?, ?, 'pending')`,
		userID, friendID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert friend request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	friend, err := scanFriend(s.db.QueryRowContext(ctx, `SELECT `+friendColumns+` FROM friends WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("query friend: %w", err)
	}
	return friend, nil
}

// UpdateFriendStatus updates the status of a friendship.
func (s *SQLiteStore) UpdateFriendStatus(ctx context.Context, userID, friendID int64, status store.FriendStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE friends
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND friend_id = ?
	`, string(status), userID, friendID)
	if err != nil {
		return fmt.Errorf("update friend status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("friendship: %w", store.ErrNotFound)
	}
	return nil
}

// GetFriendship retrieves a friendship between two users (in either direction).
func (s *SQLiteStore) GetFriendship(ctx context.Context, userID, friendID int64) (*store.Friend, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+friendColumns+`
		FROM friends
		WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)
	`, userID, friendID, friendID, userID)
	friend, err := scanFriend(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("friendship: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query friendship: %w", err)
	}
	return friend, nil
}

// ListFriends lists friendships for a user, optionally filtered by status.
func (s *SQLiteStore) ListFriends(ctx context.Context, userID int64, status *store.FriendStatus) ([]*store.Friend, error) {
	query := `SELECT ` + friendColumns + ` FROM friends WHERE (user_id = ? OR friend_id = ?)`
	args := []any{userID, userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	defer rows.Close()

	var friends []*store.Friend
	for rows.Next() {
		friend, err := scanFriend(rows)
		if err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, friend)
	}

	return friends, rows.Err()
}

// IsFriend checks if two users are friends (accepted status in either direction).
func (s *SQLiteStore) IsFriend(ctx context.Context, userID, friendID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM friends
		WHERE ((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))
		AND status = 'accepted'
	`, userID, friendID, friendID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query friendship: %w", err)
	}
	return true, nil
}

// DeleteFriendship removes a friendship record.
func (s *SQLiteStore) DeleteFriendship(ctx context.Context, userID, friendID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM friends WHERE user_id = ? AND friend_id = ?`, userID, friendID); err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	return nil
}
