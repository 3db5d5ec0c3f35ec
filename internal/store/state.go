package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GetState reads a value from the daemon_state key-value table.
// Returns "" (and no error) when the key does not exist.
func (s *Store) GetState(key string) (string, error) {
	var val string
	err := s.reader.QueryRow(`SELECT value FROM daemon_state WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return val, nil
}

// SetState writes a value to the daemon_state key-value table.
func (s *Store) SetState(key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.writer.Exec(
		`INSERT INTO daemon_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now,
	)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}
