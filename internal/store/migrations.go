package store

import (
	"database/sql"
	"fmt"
)

// migrate runs all database migrations
func migrate(db *sql.DB) error {
	migrations := []string{
		// Session (singleton row)
		`CREATE TABLE IF NOT EXISTS session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			user_id TEXT NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		// Runs (local source of truth, mirrors the backend once synced)
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			duration_millis INTEGER NOT NULL,
			date_time_utc TEXT NOT NULL,
			lat REAL NOT NULL,
			long REAL NOT NULL,
			distance_meters INTEGER NOT NULL,
			max_speed_kmh REAL NOT NULL,
			total_elevation_meters INTEGER NOT NULL,
			map_picture_url TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_date_time ON runs(date_time_utc)`,

		// Pending creates: runs committed locally whose upload failed.
		// The run snapshot and map image are embedded so the deferred
		// upload survives restarts.
		`CREATE TABLE IF NOT EXISTS pending_runs (
			run_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			duration_millis INTEGER NOT NULL,
			date_time_utc TEXT NOT NULL,
			lat REAL NOT NULL,
			long REAL NOT NULL,
			distance_meters INTEGER NOT NULL,
			max_speed_kmh REAL NOT NULL,
			total_elevation_meters INTEGER NOT NULL,
			map_picture BLOB
		)`,

		`CREATE INDEX IF NOT EXISTS idx_pending_runs_user ON pending_runs(user_id)`,

		// Pending deletes: runs removed locally whose remote delete failed.
		`CREATE TABLE IF NOT EXISTS deleted_runs (
			run_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_deleted_runs_user ON deleted_runs(user_id)`,
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	return nil
}
