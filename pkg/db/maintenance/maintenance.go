// Package maintenance keeps the geocoder response cache bounded.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"inatmap/pkg/db"
)

// Run prunes cache entries older than ttl and lets SQLite refresh its
// statistics. A zero ttl means caching is off and everything goes.
func Run(ctx context.Context, d *db.DB, ttl time.Duration) error {
	slog.Debug("Starting database maintenance...")

	removed, err := d.PruneCache(ttl)
	if err != nil {
		slog.Error("Cache pruning failed", "error", err)
		return err
	}
	if removed > 0 {
		slog.Info("Cache pruning completed", "removed", removed)
	}

	if _, err := d.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		slog.Warn("PRAGMA optimize failed", "error", err)
	}
	return nil
}

// Loop runs Run once immediately and then every interval until ctx ends.
func Loop(ctx context.Context, d *db.DB, ttl, interval time.Duration) {
	if err := Run(ctx, d, ttl); err != nil && ctx.Err() != nil {
		return
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = Run(ctx, d, ttl)
		}
	}
}
