package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries (expires_at);
`

// SQLiteBackend is a file-backed Backend using modernc.org/sqlite.
// Entries survive process restarts as a warm-start convenience, but the
// cache remains an optimization layer with no durability guarantee.
type SQLiteBackend struct {
	db *sql.DB

	stopOnce sync.Once
	done     chan struct{}
}

// NewSQLiteBackend opens (or creates) the cache database at path and starts
// a background sweeper that deletes expired rows. Use ":memory:" for an
// ephemeral database.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent pipeline stores.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: init schema: %w", err)
	}

	b := &SQLiteBackend{db: db, done: make(chan struct{})}
	go b.sweep()
	return b, nil
}

// Get returns the unexpired value for key. Expired rows are deleted lazily.
func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64
	err := b.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}

	if time.Now().UnixMilli() >= expiresAt {
		_, _ = b.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
		return nil, false, nil
	}
	return value, true, nil
}

// Set upserts the value under key with the given ttl.
func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).UnixMilli()
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Close stops the sweeper and closes the database.
func (b *SQLiteBackend) Close() error {
	b.stopOnce.Do(func() { close(b.done) })
	return b.db.Close()
}

func (b *SQLiteBackend) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			_, _ = b.db.Exec(`DELETE FROM cache_entries WHERE expires_at < ?`, time.Now().UnixMilli())
		}
	}
}
