package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertUser records a user on follow or first message.
// An empty display name keeps whatever was stored before.
func (db *DB) UpsertUser(ctx context.Context, userID, displayName string) error {
	now := time.Now().Unix()
	query := `
		INSERT INTO users (user_id, display_name, followed_at, last_message_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE users.display_name END,
			last_message_at = excluded.last_message_at
	`
	if _, err := db.conn.ExecContext(ctx, query, userID, displayName, now, now); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser returns (nil, nil) when the user is unknown.
func (db *DB) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, display_name, followed_at, last_message_at FROM users WHERE user_id = ?`,
		userID,
	).Scan(&u.UserID, &u.DisplayName, &u.FollowedAt, &u.LastMessageAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// CountUsers returns the total known user count.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}
