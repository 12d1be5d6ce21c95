package storage

import (
	"database/sql"
	"fmt"
)

// Timestamps are stored as UTC unix nanoseconds so that ordering and range
// filters are plain integer comparisons.
var migrations = []string{
	// Migration 1: Initial schema
	`CREATE TABLE IF NOT EXISTS profiles (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		owner                  TEXT NOT NULL,
		platform               TEXT NOT NULL CHECK(platform IN ('twitter', 'instagram', 'youtube')),
		handle                 TEXT NOT NULL,
		current_follower_count INTEGER NOT NULL DEFAULT 0,
		last_checked           INTEGER,
		created_at             INTEGER NOT NULL,
		updated_at             INTEGER NOT NULL,
		UNIQUE(owner, platform, handle)
	);

	CREATE TABLE IF NOT EXISTS alert_rules (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id          INTEGER NOT NULL UNIQUE REFERENCES profiles(id) ON DELETE CASCADE,
		milestone_followers INTEGER NOT NULL,
		destination         TEXT NOT NULL DEFAULT '',
		is_active           INTEGER NOT NULL DEFAULT 1,
		created_at          INTEGER NOT NULL,
		updated_at          INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS follower_samples (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id     INTEGER NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		follower_count INTEGER NOT NULL,
		recorded_at    INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_profile_recorded ON follower_samples(profile_id, recorded_at DESC);

	CREATE TABLE IF NOT EXISTS alert_notifications (
		id                      INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id              INTEGER NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		milestone_followers     INTEGER NOT NULL,
		follower_count_at_alert INTEGER NOT NULL,
		message                 TEXT NOT NULL,
		sent                    INTEGER NOT NULL DEFAULT 0,
		created_at              INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_profile ON alert_notifications(profile_id);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
