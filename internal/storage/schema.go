package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates all necessary tables and indexes.
// Note: WAL mode and pragmas are configured in db.go.
func InitSchema(db *sql.DB) error {
	tables := []struct {
		name  string
		query string
	}{
		{"users", `
		CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			display_name TEXT,
			followed_at INTEGER NOT NULL,
			last_message_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_users_last_message_at ON users(last_message_at);
		`},
		{"sessions", `
		CREATE TABLE IF NOT EXISTS sessions (
			user_id TEXT PRIMARY KEY,
			flow_name TEXT,
			current_step TEXT,
			step_data TEXT,
			expires_at INTEGER,
			last_message_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
		`},
		{"health_reminders", `
		CREATE TABLE IF NOT EXISTS health_reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			kind TEXT CHECK(kind IN ('medication', 'appointment')) NOT NULL,
			title TEXT NOT NULL,
			times TEXT,
			appointment_at INTEGER,
			location TEXT,
			department TEXT,
			created_at INTEGER NOT NULL,
			last_sent_at INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_health_reminders_user ON health_reminders(user_id);
		CREATE INDEX IF NOT EXISTS idx_health_reminders_kind ON health_reminders(kind);
		`},
		{"groups", `
		CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			event_at INTEGER NOT NULL,
			location TEXT NOT NULL,
			max_participants INTEGER NOT NULL,
			current_participants INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_groups_event_at ON groups(event_at);
		CREATE INDEX IF NOT EXISTS idx_groups_owner ON groups(owner_id);
		`},
		{"group_members", `
		CREATE TABLE IF NOT EXISTS group_members (
			group_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			status TEXT CHECK(status IN ('approved', 'pending')) NOT NULL,
			joined_at INTEGER NOT NULL,
			PRIMARY KEY (group_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members(user_id);
		CREATE INDEX IF NOT EXISTS idx_group_members_status ON group_members(group_id, status, joined_at);
		`},
		{"tour_plans", `
		CREATE TABLE IF NOT EXISTS tour_plans (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			destination TEXT NOT NULL,
			days INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tour_plans_user ON tour_plans(user_id, created_at);
		`},
		{"activities", `
		CREATE TABLE IF NOT EXISTS activities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			category TEXT NOT NULL,
			location TEXT,
			description TEXT,
			scheduled_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_activities_scheduled_at ON activities(scheduled_at);
		CREATE INDEX IF NOT EXISTS idx_activities_category ON activities(category);
		`},
		{"family_links", `
		CREATE TABLE IF NOT EXISTS family_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			contact_name TEXT NOT NULL,
			phone TEXT NOT NULL,
			relation TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_family_links_user ON family_links(user_id);
		`},
		{"weather_cache", `
		CREATE TABLE IF NOT EXISTS weather_cache (
			city TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			cached_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_weather_cache_cached_at ON weather_cache(cached_at);
		`},
	}

	for _, table := range tables {
		if _, err := db.ExecContext(context.Background(), table.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	return nil
}
