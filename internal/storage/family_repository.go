package storage

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
)

// CreateFamilyLink saves a family contact and returns its ID.
func (db *DB) CreateFamilyLink(ctx context.Context, f *FamilyLink) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO family_links (user_id, contact_name, phone, relation, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.UserID, f.ContactName, f.Phone, f.Relation, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("create family link: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("family link id: %w", err)
	}
	return id, nil
}

// ListFamilyLinks returns a user's family contacts in creation order.
func (db *DB) ListFamilyLinks(ctx context.Context, userID string) ([]FamilyLink, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, contact_name, phone, relation, created_at
		FROM family_links WHERE user_id = ? ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list family links: %w", err)
	}
	defer rows.Close()

	var links []FamilyLink
	for rows.Next() {
		var f FamilyLink
		if err := rows.Scan(&f.ID, &f.UserID, &f.ContactName, &f.Phone, &f.Relation, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan family link: %w", err)
		}
		links = append(links, f)
	}
	return links, rows.Err()
}

// DeleteFamilyLink removes a contact after an ownership check.
func (db *DB) DeleteFamilyLink(ctx context.Context, id int64, userID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM family_links WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete family link: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
