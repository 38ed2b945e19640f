package services

import (
	"context"
	"time"

	"github.com/civicwatch/incident-portal/internal/database"
	"go.uber.org/zap"
)

// ResetSweeper periodically purges password reset rows that can no longer be
// used: expired ones and consumed ones, once older than the retention window.
type ResetSweeper struct {
	db        database.DB
	retention time.Duration
	logger    *zap.SugaredLogger
}

// NewResetSweeper creates a new background sweeper
func NewResetSweeper(db database.DB, retention time.Duration, logger *zap.SugaredLogger) *ResetSweeper {
	return &ResetSweeper{db: db, retention: retention, logger: logger}
}

const defaultSweepInterval = time.Hour

// Start runs the sweep loop until ctx is cancelled. A non-positive interval
// falls back to one hour.
func (w *ResetSweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		w.logger.Warnw("Invalid sweep interval, using default", "interval", interval, "default", defaultSweepInterval)
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial sweep
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reset sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep returns the number of deleted rows.
func (w *ResetSweeper) sweep(ctx context.Context) int64 {
	cutoff := time.Now().Add(-w.retention)
	tag, err := w.db.Exec(ctx,
		`DELETE FROM password_resets WHERE expires_at < $1 OR used_at < $1`, cutoff)
	if err != nil {
		w.logger.Warnw("Reset sweep failed", "error", err)
		return 0
	}
	if n := tag.RowsAffected(); n > 0 {
		w.logger.Infow("Expired password resets purged", "rows", n)
		return n
	}
	return 0
}
