package worker

import (
	"context"
	"log/slog"
	"time"
)

// Refresher rebuilds a read snapshot from the local store.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshWorker periodically rebuilds the cache snapshot so derived lists
// such as near-expiry products follow the calendar between mutations.
type RefreshWorker struct {
	refresher Refresher
	interval  time.Duration
}

// NewRefreshWorker creates a worker with the given refresher and interval.
func NewRefreshWorker(refresher Refresher, interval time.Duration) *RefreshWorker {
	return &RefreshWorker{
		refresher: refresher,
		interval:  interval,
	}
}

// Run starts the worker loop. Refreshes immediately on start, then on each
// interval, until ctx is cancelled.
func (w *RefreshWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "cache-refresh",
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "cache-refresh",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *RefreshWorker) refresh(ctx context.Context) {
	if err := w.refresher.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("cache refresh failed",
			"component", "worker",
			"action", "cache_refresh_failed",
			"error", err,
		)
	}
}
