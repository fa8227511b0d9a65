package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
)

// CreateReminder inserts a reminder and returns its ID.
// Times are stored as a JSON array for medication reminders; appointment
// reminders carry a unix timestamp instead.
func (db *DB) CreateReminder(ctx context.Context, r *HealthReminder) (int64, error) {
	timesJSON := "[]"
	if len(r.Times) > 0 {
		encoded, err := json.Marshal(r.Times)
		if err != nil {
			return 0, fmt.Errorf("encode reminder times: %w", err)
		}
		timesJSON = string(encoded)
	}

	query := `
		INSERT INTO health_reminders (user_id, kind, title, times, appointment_at, location, department, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.conn.ExecContext(ctx, query,
		r.UserID, r.Kind, r.Title, timesJSON, r.AppointmentAt, r.Location, r.Department, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("create reminder: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reminder id: %w", err)
	}
	return id, nil
}

// ListReminders returns all reminders for a user, newest first.
func (db *DB) ListReminders(ctx context.Context, userID string) ([]HealthReminder, error) {
	query := `
		SELECT id, user_id, kind, title, times, appointment_at, location, department, created_at, last_sent_at
		FROM health_reminders WHERE user_id = ? ORDER BY created_at DESC
	`
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []HealthReminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}

// GetReminder retrieves a reminder by ID.
func (db *DB) GetReminder(ctx context.Context, id int64) (*HealthReminder, error) {
	query := `
		SELECT id, user_id, kind, title, times, appointment_at, location, department, created_at, last_sent_at
		FROM health_reminders WHERE id = ?
	`
	rows, err := db.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, apperrors.ErrNotFound
	}
	return scanReminder(rows)
}

// DeleteReminder removes a reminder after an ownership check.
func (db *DB) DeleteReminder(ctx context.Context, id int64, userID string) error {
	r, err := db.GetReminder(ctx, id)
	if err != nil {
		return err
	}
	if r.UserID != userID {
		return apperrors.ErrNoPermission
	}
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM health_reminders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}

// DueMedicationReminders returns medication reminders scheduled at the
// given HH:MM whose last dispatch was before the cutoff. The cutoff guards
// against double sends when the dispatch tick jitters across a minute
// boundary.
func (db *DB) DueMedicationReminders(ctx context.Context, hhmm string, sentBefore int64) ([]HealthReminder, error) {
	query := `
		SELECT id, user_id, kind, title, times, appointment_at, location, department, created_at, last_sent_at
		FROM health_reminders
		WHERE kind = ? AND last_sent_at < ? AND times LIKE ?
	`
	rows, err := db.conn.QueryContext(ctx, query, ReminderMedication, sentBefore, "%\""+hhmm+"\"%")
	if err != nil {
		return nil, fmt.Errorf("due medication reminders: %w", err)
	}
	defer rows.Close()

	var due []HealthReminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, *r)
	}
	return due, rows.Err()
}

// DueAppointmentReminders returns appointment reminders falling inside
// [from, to) that have not been dispatched yet.
func (db *DB) DueAppointmentReminders(ctx context.Context, from, to int64) ([]HealthReminder, error) {
	query := `
		SELECT id, user_id, kind, title, times, appointment_at, location, department, created_at, last_sent_at
		FROM health_reminders
		WHERE kind = ? AND appointment_at >= ? AND appointment_at < ? AND last_sent_at = 0
	`
	rows, err := db.conn.QueryContext(ctx, query, ReminderAppointment, from, to)
	if err != nil {
		return nil, fmt.Errorf("due appointment reminders: %w", err)
	}
	defer rows.Close()

	var due []HealthReminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, *r)
	}
	return due, rows.Err()
}

// MarkReminderSent stamps the last dispatch time.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE health_reminders SET last_sent_at = ? WHERE id = ?`,
		time.Now().Unix(), id,
	); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

func scanReminder(rows *sql.Rows) (*HealthReminder, error) {
	var (
		r         HealthReminder
		timesJSON string
	)
	if err := rows.Scan(
		&r.ID, &r.UserID, &r.Kind, &r.Title, &timesJSON,
		&r.AppointmentAt, &r.Location, &r.Department, &r.CreatedAt, &r.LastSentAt,
	); err != nil {
		return nil, fmt.Errorf("scan reminder: %w", err)
	}
	if timesJSON != "" && timesJSON != "[]" {
		if err := json.Unmarshal([]byte(timesJSON), &r.Times); err != nil {
			return nil, fmt.Errorf("decode reminder times: %w", err)
		}
	}
	return &r, nil
}
