package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver.
)

// Store wraps the daemon's SQLite database. Two physical connections are
// kept: a serialized writer (single connection, so all mutations queue)
// and a reader that WAL mode keeps unblocked by in-flight writes.
type Store struct {
	writer *sql.DB
	reader *sql.DB
	locks  *sessionLocks
}

// New opens (or creates) the SQLite database at dbPath with WAL mode and
// a 5-second busy timeout, runs pending migrations, and opens the second
// read-only connection.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", dbPath)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: the writer serializes all mutations itself.
	writer.SetMaxOpenConns(1)

	// Verify connection and WAL mode.
	var journalMode string
	if err := writer.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("check journal mode: %w", err)
	}
	if journalMode != "wal" {
		_ = writer.Close()
		return nil, fmt.Errorf("expected WAL journal mode, got %q", journalMode)
	}

	if err := migrate(writer); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn+"&mode=ro")
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open read connection: %w", err)
	}
	if err := reader.Ping(); err != nil {
		_ = writer.Close()
		_ = reader.Close()
		return nil, fmt.Errorf("ping read connection: %w", err)
	}

	return &Store{writer: writer, reader: reader, locks: newSessionLocks()}, nil
}

// Close closes both database connections.
func (s *Store) Close() error {
	var first error
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			first = err
		}
	}
	if s.writer != nil {
		if err := s.writer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SessionCount returns the number of sessions recorded.
func (s *Store) SessionCount() (int64, error) {
	var count int64
	err := s.reader.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, err
}

// MessageCount returns the number of messages recorded.
func (s *Store) MessageCount() (int64, error) {
	var count int64
	err := s.reader.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count)
	return count, err
}

// DBSizeBytes returns the database file size in bytes.
// This is an approximation using page_count * page_size.
func (s *Store) DBSizeBytes() (int64, error) {
	var pageCount, pageSize int64
	if err := s.reader.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, err
	}
	if err := s.reader.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pageCount * pageSize, nil
}
