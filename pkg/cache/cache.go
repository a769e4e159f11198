package cache

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"inatmap/pkg/db"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// SQLiteCache implements Cacher using pkg/db. Entries older than ttl are treated as misses.
type SQLiteCache struct {
	db  *db.DB
	ttl time.Duration
}

// NewSQLiteCache creates a new cache.
func NewSQLiteCache(d *db.DB, ttl time.Duration) *SQLiteCache {
	return &SQLiteCache{db: d, ttl: ttl}
}

// GetCache returns the cached value for key if present and not expired.
func (c *SQLiteCache) GetCache(ctx context.Context, key string) ([]byte, bool) {
	deadline := time.Now().Add(-c.ttl).UTC().Format("2006-01-02 15:04:05")

	var val []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT value FROM cache WHERE key = ? AND created_at >= ?", key, deadline).Scan(&val)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("Cache lookup failed", "key", key, "error", err)
		}
		return nil, false
	}
	return val, true
}

// SetCache stores val under key, replacing any previous entry.
func (c *SQLiteCache) SetCache(ctx context.Context, key string, val []byte) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache (key, value, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)", key, val)
	return err
}

// Nop is a Cacher that never stores anything.
type Nop struct{}

func (Nop) GetCache(context.Context, string) ([]byte, bool) { return nil, false }

func (Nop) SetCache(context.Context, string, []byte) error { return nil }
