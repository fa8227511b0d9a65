package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
)

// SaveTourPlan persists a generated itinerary and returns its ID.
func (db *DB) SaveTourPlan(ctx context.Context, userID, destination string, days int, content string) (string, error) {
	id := uuid.NewString()
	if _, err := db.conn.ExecContext(ctx, `
		INSERT INTO tour_plans (id, user_id, destination, days, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, userID, destination, days, content, time.Now().Unix()); err != nil {
		return "", fmt.Errorf("save tour plan: %w", err)
	}
	return id, nil
}

// GetTourPlan retrieves a saved itinerary by ID.
func (db *DB) GetTourPlan(ctx context.Context, id string) (*TourPlan, error) {
	var p TourPlan
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, destination, days, content, created_at
		FROM tour_plans WHERE id = ?
	`, id).Scan(&p.ID, &p.UserID, &p.Destination, &p.Days, &p.Content, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tour plan: %w", err)
	}
	return &p, nil
}

// ListTourPlans returns a user's saved itineraries, newest first.
func (db *DB) ListTourPlans(ctx context.Context, userID string, limit int) ([]TourPlan, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, destination, days, content, created_at
		FROM tour_plans WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list tour plans: %w", err)
	}
	defer rows.Close()

	var plans []TourPlan
	for rows.Next() {
		var p TourPlan
		if err := rows.Scan(&p.ID, &p.UserID, &p.Destination, &p.Days, &p.Content, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tour plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}
