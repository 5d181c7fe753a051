// Package store implements the leaderboard persistence layer: SQLite
// open/pragma handling and the migration-managed schema.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Open opens (or creates) the leaderboard database at path with the
// recommended pragmas: WAL journal mode, synchronous=NORMAL,
// foreign_keys=ON, busy_timeout=5000. The returned handle is intended
// for the single writer; it is limited to one connection.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}

	// Single-writer: only one connection needed.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db, path); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenReadOnly opens the database for concurrent readers. WAL mode lets
// these connections proceed without blocking the writer. Pragmas ride
// in the DSN so every pooled connection gets them, not just the first.
func OpenReadOnly(path string) (*sql.DB, error) {
	dsn := "file:" + path + "?mode=ro" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(2)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db %s read-only: %w", path, err)
	}
	// Force a connection so a missing file fails here, not on first query.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open db %s read-only: %w", path, err)
	}
	return db, nil
}

func applyPragmas(db *sql.DB, path string) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("exec %q on %s: %w", p, path, err)
		}
	}
	return nil
}
