package store

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the SQLite database at path for reading.
//
// The session is configured through DSN parameters so every pooled
// connection gets the same treatment:
//   - mode=ro, the file must already exist and is never created
//   - query_only, write statements fail even on an attached database
//   - 5-second busy timeout for lock contention with concurrent writers
//
// The pool is capped at one connection. Query execution upstream is
// serial, and a single connection keeps SQLITE_BUSY retries out of the
// picture on databases that are still being written by their producer.
func Open(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("source database: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_query_only=1&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open source database %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Force a header read; sqlite otherwise defers noticing a corrupt or
	// non-database file until the first real statement.
	var schemaVersion int
	if err := db.QueryRow("PRAGMA schema_version").Scan(&schemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("open source database %q: %w", path, err)
	}

	return db, nil
}
