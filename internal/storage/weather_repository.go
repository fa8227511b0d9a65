package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetCachedWeather returns the cached payload for a city when it is newer
// than maxAge. A stale or missing entry returns ("", false, nil).
func (db *DB) GetCachedWeather(ctx context.Context, city string, maxAge time.Duration) (string, bool, error) {
	var (
		payload  string
		cachedAt int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT payload, cached_at FROM weather_cache WHERE city = ?`, city,
	).Scan(&payload, &cachedAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query weather cache: %w", err)
	}
	if time.Since(time.Unix(cachedAt, 0)) > maxAge {
		return "", false, nil
	}
	return payload, true, nil
}

// PutCachedWeather stores or refreshes the cached payload for a city.
func (db *DB) PutCachedWeather(ctx context.Context, city, payload string) error {
	if _, err := db.conn.ExecContext(ctx, `
		INSERT INTO weather_cache (city, payload, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(city) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at
	`, city, payload, time.Now().Unix()); err != nil {
		return fmt.Errorf("put weather cache: %w", err)
	}
	return nil
}
