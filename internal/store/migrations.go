package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

const versionKey = "schema_version"

// migrate brings the database up to the latest schema version. Each
// pending step runs in one transaction together with its version bump,
// so a failed step leaves the previous version intact.
func migrate(db *sql.DB) error {
	// The version record lives in daemon_state, which the first
	// migration itself creates; bootstrap the table so the version
	// read works on an empty database.
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS daemon_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("bootstrap daemon_state: %w", err)
	}

	version, err := recordedVersion(db)
	if err != nil {
		return err
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this build (%d)", version, len(migrations))
	}

	for ; version < len(migrations); version++ {
		if err := applyStep(db, version+1, migrations[version]); err != nil {
			return err
		}
	}
	return nil
}

func applyStep(db *sql.DB, version int, script string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: %w", version, err)
	}

	if _, err := tx.Exec(script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d: %w", version, err)
	}

	stamp := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.Exec(
		`INSERT INTO daemon_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		versionKey, strconv.Itoa(version), stamp,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record schema version %d: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}
	return nil
}

// recordedVersion reads the schema version, 0 for a fresh database.
func recordedVersion(db *sql.DB) (int, error) {
	var raw string
	err := db.QueryRow(`SELECT value FROM daemon_state WHERE key = ?`, versionKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("schema version %q: %w", raw, err)
	}
	return n, nil
}
