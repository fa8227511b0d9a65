package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
)

// SeedActivities inserts the given activities if the table is empty.
// Used at startup to provide a default recommendation pool.
func (db *DB) SeedActivities(ctx context.Context, activities []Activity) error {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&count); err != nil {
		return fmt.Errorf("count activities: %w", err)
	}
	if count > 0 {
		return nil
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, a := range activities {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO activities (title, category, location, description, scheduled_at)
				VALUES (?, ?, ?, ?, ?)
			`, a.Title, a.Category, a.Location, a.Description, a.ScheduledAt); err != nil {
				return fmt.Errorf("insert activity: %w", err)
			}
		}
		return nil
	})
}

// ListUpcomingActivities returns activities scheduled after now, soonest
// first. An empty category matches all categories.
func (db *DB) ListUpcomingActivities(ctx context.Context, category string, limit int) ([]Activity, error) {
	query := `
		SELECT id, title, category, location, description, scheduled_at
		FROM activities WHERE scheduled_at > ?
	`
	args := []any{time.Now().Unix()}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY scheduled_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Title, &a.Category, &a.Location, &a.Description, &a.ScheduledAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// GetActivity retrieves an activity by ID.
func (db *DB) GetActivity(ctx context.Context, id int64) (*Activity, error) {
	var a Activity
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, title, category, location, description, scheduled_at
		FROM activities WHERE id = ?
	`, id).Scan(&a.ID, &a.Title, &a.Category, &a.Location, &a.Description, &a.ScheduledAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	return &a, nil
}
