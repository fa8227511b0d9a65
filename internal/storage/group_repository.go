package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
)

// CreateGroup inserts a new group with the owner as its first approved
// member. Both rows commit atomically so a group can never exist without
// its owner counted.
func (db *DB) CreateGroup(ctx context.Context, ownerID, title string, eventAt int64, location string, maxParticipants int) (*Group, error) {
	g := &Group{
		ID:                  uuid.NewString(),
		OwnerID:             ownerID,
		Title:               title,
		EventAt:             eventAt,
		Location:            location,
		MaxParticipants:     maxParticipants,
		CurrentParticipants: 1,
		CreatedAt:           time.Now().Unix(),
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO groups (id, owner_id, title, event_at, location, max_participants, current_participants, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		`, g.ID, g.OwnerID, g.Title, g.EventAt, g.Location, g.MaxParticipants, g.CreatedAt); err != nil {
			return fmt.Errorf("insert group: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO group_members (group_id, user_id, status, joined_at)
			VALUES (?, ?, ?, ?)
		`, g.ID, g.OwnerID, MemberApproved, g.CreatedAt); err != nil {
			return fmt.Errorf("insert owner member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GetGroup retrieves a group by ID.
func (db *DB) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	var g Group
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, owner_id, title, event_at, location, max_participants, current_participants, created_at
		FROM groups WHERE id = ?
	`, groupID).Scan(&g.ID, &g.OwnerID, &g.Title, &g.EventAt, &g.Location, &g.MaxParticipants, &g.CurrentParticipants, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query group: %w", err)
	}
	return &g, nil
}

// ListUpcomingGroups returns groups whose event has not started yet,
// soonest first, capped at limit.
func (db *DB) ListUpcomingGroups(ctx context.Context, limit int) ([]Group, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, owner_id, title, event_at, location, max_participants, current_participants, created_at
		FROM groups WHERE event_at > ? ORDER BY event_at ASC LIMIT ?
	`, time.Now().Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("list upcoming groups: %w", err)
	}
	defer rows.Close()
	return scanGroups(rows)
}

// ListGroupsByMember returns groups where the user is a member of any
// status, soonest event first.
func (db *DB) ListGroupsByMember(ctx context.Context, userID string) ([]Group, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT g.id, g.owner_id, g.title, g.event_at, g.location, g.max_participants, g.current_participants, g.created_at
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = ?
		ORDER BY g.event_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups by member: %w", err)
	}
	defer rows.Close()
	return scanGroups(rows)
}

// GetMember returns the membership row for a user in a group, or
// (nil, nil) when the user is not a member.
func (db *DB) GetMember(ctx context.Context, groupID, userID string) (*GroupMember, error) {
	var m GroupMember
	err := db.conn.QueryRowContext(ctx, `
		SELECT group_id, user_id, status, joined_at FROM group_members
		WHERE group_id = ? AND user_id = ?
	`, groupID, userID).Scan(&m.GroupID, &m.UserID, &m.Status, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query member: %w", err)
	}
	return &m, nil
}

// ListMembers returns all members of a group with the given status, in
// join order.
func (db *DB) ListMembers(ctx context.Context, groupID, status string) ([]GroupMember, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT group_id, user_id, status, joined_at FROM group_members
		WHERE group_id = ? AND status = ? ORDER BY joined_at ASC
	`, groupID, status)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []GroupMember
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Status, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// JoinGroup adds a user to a group. When the group is full the user lands
// on the waitlist as pending. Capacity check and member insert run in one
// transaction so the approved count can never exceed max_participants.
func (db *DB) JoinGroup(ctx context.Context, groupID, userID string) (status string, err error) {
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		var current, max int
		row := tx.QueryRowContext(ctx,
			`SELECT current_participants, max_participants FROM groups WHERE id = ?`, groupID)
		if scanErr := row.Scan(&current, &max); scanErr == sql.ErrNoRows {
			return apperrors.ErrNotFound
		} else if scanErr != nil {
			return fmt.Errorf("query group capacity: %w", scanErr)
		}

		var existing string
		row = tx.QueryRowContext(ctx,
			`SELECT status FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
		if scanErr := row.Scan(&existing); scanErr == nil {
			return apperrors.ErrAlreadyMember
		} else if scanErr != sql.ErrNoRows {
			return fmt.Errorf("query membership: %w", scanErr)
		}

		status = MemberApproved
		if current >= max {
			status = MemberPending
		}

		if _, execErr := tx.ExecContext(ctx, `
			INSERT INTO group_members (group_id, user_id, status, joined_at)
			VALUES (?, ?, ?, ?)
		`, groupID, userID, status, time.Now().Unix()); execErr != nil {
			return fmt.Errorf("insert member: %w", execErr)
		}

		if status == MemberApproved {
			if _, execErr := tx.ExecContext(ctx,
				`UPDATE groups SET current_participants = current_participants + 1 WHERE id = ?`,
				groupID); execErr != nil {
				return fmt.Errorf("increment participants: %w", execErr)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// LeaveGroup removes an approved or pending member. When an approved
// member leaves, the oldest pending member is promoted in the same
// transaction and their user ID is returned so the caller can notify them.
func (db *DB) LeaveGroup(ctx context.Context, groupID, userID string) (promotedUserID string, err error) {
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		row := tx.QueryRowContext(ctx,
			`SELECT status FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
		if scanErr := row.Scan(&status); scanErr == sql.ErrNoRows {
			return apperrors.ErrNotFound
		} else if scanErr != nil {
			return fmt.Errorf("query membership: %w", scanErr)
		}

		if _, execErr := tx.ExecContext(ctx,
			`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID); execErr != nil {
			return fmt.Errorf("delete member: %w", execErr)
		}

		if status != MemberApproved {
			return nil
		}

		var pending string
		row = tx.QueryRowContext(ctx, `
			SELECT user_id FROM group_members
			WHERE group_id = ? AND status = ? ORDER BY joined_at ASC LIMIT 1
		`, groupID, MemberPending)
		scanErr := row.Scan(&pending)
		if scanErr == sql.ErrNoRows {
			// No waitlist, the seat stays open.
			if _, execErr := tx.ExecContext(ctx,
				`UPDATE groups SET current_participants = current_participants - 1 WHERE id = ?`,
				groupID); execErr != nil {
				return fmt.Errorf("decrement participants: %w", execErr)
			}
			return nil
		}
		if scanErr != nil {
			return fmt.Errorf("query waitlist: %w", scanErr)
		}

		// Promote the oldest pending member; the approved count is unchanged.
		if _, execErr := tx.ExecContext(ctx, `
			UPDATE group_members SET status = ? WHERE group_id = ? AND user_id = ?
		`, MemberApproved, groupID, pending); execErr != nil {
			return fmt.Errorf("promote member: %w", execErr)
		}
		promotedUserID = pending
		return nil
	})
	if err != nil {
		return "", err
	}
	return promotedUserID, nil
}

// DeleteGroup removes a group and its members after an ownership check.
func (db *DB) DeleteGroup(ctx context.Context, groupID, ownerID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		row := tx.QueryRowContext(ctx, `SELECT owner_id FROM groups WHERE id = ?`, groupID)
		if err := row.Scan(&owner); err == sql.ErrNoRows {
			return apperrors.ErrNotFound
		} else if err != nil {
			return fmt.Errorf("query group owner: %w", err)
		}
		if owner != ownerID {
			return apperrors.ErrNoPermission
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, groupID); err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, groupID); err != nil {
			return fmt.Errorf("delete group: %w", err)
		}
		return nil
	})
}

func scanGroups(rows *sql.Rows) ([]Group, error) {
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Title, &g.EventAt, &g.Location, &g.MaxParticipants, &g.CurrentParticipants, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
