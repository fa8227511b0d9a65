package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetSession retrieves a session by user ID.
// Returns (nil, nil) when no session exists; absence is an expected state.
func (db *DB) GetSession(ctx context.Context, userID string) (*Session, error) {
	query := `
		SELECT user_id, flow_name, current_step, step_data, expires_at, last_message_at
		FROM sessions WHERE user_id = ?
	`

	var (
		s        Session
		flowName sql.NullString
		step     sql.NullString
		stepData sql.NullString
		expires  sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID, &flowName, &step, &stepData, &expires, &s.LastMessageAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	s.FlowName = flowName.String
	s.CurrentStep = step.String
	s.ExpiresAt = expires.Int64
	if stepData.Valid && stepData.String != "" {
		if err := json.Unmarshal([]byte(stepData.String), &s.StepData); err != nil {
			return nil, fmt.Errorf("decode step data: %w", err)
		}
	}

	return &s, nil
}

// StartFlowSession creates or fully overwrites the session row for a new
// flow. Any prior flow state is discarded; stale step data must never leak
// into a later flow instantiation.
func (db *DB) StartFlowSession(ctx context.Context, userID, flowName, firstStep string, initialData map[string]string, expiresAt int64) error {
	encoded, err := encodeStepData(initialData)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	query := `
		INSERT INTO sessions (user_id, flow_name, current_step, step_data, expires_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			flow_name = excluded.flow_name,
			current_step = excluded.current_step,
			step_data = excluded.step_data,
			expires_at = excluded.expires_at,
			last_message_at = excluded.last_message_at
	`
	if _, err := db.conn.ExecContext(ctx, query, userID, flowName, firstStep, encoded, expiresAt, now); err != nil {
		return fmt.Errorf("start flow session: %w", err)
	}
	return nil
}

// AdvanceSession replaces the current step and step data.
// Step data is replaced, not merged: the step handler owns the full merge
// and intentionally passes the complete snapshot it wants persisted.
func (db *DB) AdvanceSession(ctx context.Context, userID, nextStep string, stepData map[string]string) error {
	encoded, err := encodeStepData(stepData)
	if err != nil {
		return err
	}

	query := `
		UPDATE sessions SET current_step = ?, step_data = ?, last_message_at = ?
		WHERE user_id = ? AND flow_name IS NOT NULL
	`
	if _, err := db.conn.ExecContext(ctx, query, nextStep, encoded, time.Now().Unix(), userID); err != nil {
		return fmt.Errorf("advance session: %w", err)
	}
	return nil
}

// ClearFlowSession clears the flow, step and data for a user.
// Idempotent: clearing a session with no active flow is a no-op.
func (db *DB) ClearFlowSession(ctx context.Context, userID string) error {
	query := `
		UPDATE sessions
		SET flow_name = NULL, current_step = NULL, step_data = NULL, expires_at = NULL
		WHERE user_id = ?
	`
	if _, err := db.conn.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("clear flow session: %w", err)
	}
	return nil
}

// TouchSession updates the last-message timestamp, creating the row if
// needed. Called for every handled inbound regardless of dispatch branch.
func (db *DB) TouchSession(ctx context.Context, userID string) error {
	now := time.Now().Unix()
	query := `
		INSERT INTO sessions (user_id, last_message_at)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_message_at = excluded.last_message_at
	`
	if _, err := db.conn.ExecContext(ctx, query, userID, now); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes flow state from sessions whose deadline
// passed before the cutoff. Used by the background sweep; dispatch detects
// expiry lazily and does not depend on this.
func (db *DB) DeleteExpiredSessions(ctx context.Context, cutoff int64) (int64, error) {
	query := `
		UPDATE sessions
		SET flow_name = NULL, current_step = NULL, step_data = NULL, expires_at = NULL
		WHERE flow_name IS NOT NULL AND expires_at < ?
	`
	result, err := db.conn.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// CountActiveFlows returns the number of sessions with an active flow.
func (db *DB) CountActiveFlows(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE flow_name IS NOT NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active flows: %w", err)
	}
	return count, nil
}

func encodeStepData(data map[string]string) (string, error) {
	if len(data) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode step data: %w", err)
	}
	return string(encoded), nil
}
