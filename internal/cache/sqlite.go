package cache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    expires_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires
    ON cache_entries(expires_at)
    WHERE expires_at IS NOT NULL;
`

// SQLiteBackend is a durable backend over a single SQLite file, for
// restart-surviving caches and for sharing a cache between CLI runs.
// expires_at is unix seconds; NULL means no expiry.
type SQLiteBackend struct {
	db    *sql.DB
	now   func() time.Time
	stats *Stats
}

// SQLiteOption configures a SQLiteBackend.
type SQLiteOption func(*SQLiteBackend)

// WithSQLiteClock injects the time source used for expiry checks.
func WithSQLiteClock(now func() time.Time) SQLiteOption {
	return func(b *SQLiteBackend) { b.now = now }
}

// WithSQLiteStats lets the backend count expiry evictions on the shared
// engine Stats.
func WithSQLiteStats(stats *Stats) SQLiteOption {
	return func(b *SQLiteBackend) { b.stats = stats }
}

// OpenSQLite creates or opens a cache database at path (":memory:" works
// for tests). The database is configured with WAL mode, NORMAL synchronous,
// a 5-second busy timeout, and a single connection, since SQLite allows one
// writer at a time.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply cache schema: %w", err)
	}

	b := &SQLiteBackend{db: db, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Close releases the database handle.
func (b *SQLiteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Get returns the stored value. An expired row is deleted and reads as
// absent.
func (b *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt sql.NullInt64
	err := b.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get %q: %w", key, err)
	}

	if expiresAt.Valid && expiresAt.Int64 <= b.now().Unix() {
		if _, err := b.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			return "", false, fmt.Errorf("cache expire %q: %w", key, err)
		}
		if b.stats != nil {
			b.stats.Evict()
		}
		return "", false, nil
	}
	return value, true, nil
}

// Set upserts value under key.
func (b *SQLiteBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = b.now().Add(ttl).Unix()
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		    value = excluded.value,
		    expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Absent keys are a no-op.
func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}

// KeysWithPrefix returns the live keys under prefix in deterministic order.
func (b *SQLiteBackend) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT key FROM cache_entries
		WHERE key LIKE ? ESCAPE '\'
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key ASC`,
		escapeLike(prefix)+"%", b.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("cache list %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("cache list %q: %w", prefix, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache list %q: %w", prefix, err)
	}
	return keys, nil
}

// PurgeExpired removes every expired row and returns how many went.
func (b *SQLiteBackend) PurgeExpired(ctx context.Context) (int, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		b.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	if b.stats != nil {
		for i := int64(0); i < n; i++ {
			b.stats.Evict()
		}
	}
	return int(n), nil
}

// escapeLike escapes LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
