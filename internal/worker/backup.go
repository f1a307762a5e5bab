package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/stockroom/internal/backup"
	"github.com/hyperengineering/stockroom/internal/metrics"
)

// BackupStore defines the store operations needed by the backup worker.
type BackupStore interface {
	Backup(ctx context.Context, dir string) (string, error)
	PurgeCompletedSync(ctx context.Context, before time.Time) (int64, error)
}

// BackupResult describes one backup run.
type BackupResult struct {
	Path      string   `json:"path,omitempty"`
	ObjectKey string   `json:"object_key,omitempty"`
	Pruned    []string `json:"pruned,omitempty"`
	Purged    int64    `json:"purged"`
}

// BackupWorker periodically copies the database to disk, ships the copy to
// object storage and trims old local copies and applied queue entries.
type BackupWorker struct {
	store     BackupStore
	uploader  backup.Uploader
	dir       string
	keep      int
	retention time.Duration

	mu       sync.Mutex
	policy   Policy
	enabled  bool
	failures int
	interval time.Duration

	wake chan struct{}
}

// NewBackupWorker creates a backup worker writing into dir and keeping the
// newest keep copies. Completed queue entries older than retention are purged
// on every run, whether or not backups are enabled.
func NewBackupWorker(store BackupStore, uploader backup.Uploader, dir string, keep int, retention time.Duration, policy Policy, enabled bool) *BackupWorker {
	if uploader == nil {
		uploader = &backup.NoopUploader{}
	}
	return &BackupWorker{
		store:     store,
		uploader:  uploader,
		dir:       dir,
		keep:      keep,
		retention: retention,
		policy:    policy,
		enabled:   enabled,
		interval:  policy.Interval(0),
		wake:      make(chan struct{}, 1),
	}
}

// Run starts the worker loop. Runs immediately on start, then each time the
// current interval elapses. Blocks until ctx is cancelled.
func (w *BackupWorker) Run(ctx context.Context) {
	runLoop(ctx, "backup", w.currentInterval, w.wake, w.tick)
}

// SetPolicy replaces the interval policy and the enabled flag.
func (w *BackupWorker) SetPolicy(policy Policy, enabled bool) {
	w.mu.Lock()
	w.policy = policy
	w.enabled = enabled
	w.interval = policy.Interval(w.failures)
	w.mu.Unlock()
	signal(w.wake)
}

// Enabled reports whether scheduled backups are enabled.
func (w *BackupWorker) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled
}

func (w *BackupWorker) currentInterval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.interval
}

func (w *BackupWorker) tick(ctx context.Context) {
	if !w.Enabled() {
		w.purge(ctx)
		metrics.BackupsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return
	}

	_, err := w.BackupNow(ctx)

	w.mu.Lock()
	if err != nil {
		w.failures++
	} else {
		w.failures = 0
	}
	w.interval = w.policy.Interval(w.failures)
	failures, interval := w.failures, w.interval
	w.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		slog.Warn("backup failed",
			"component", "worker",
			"worker", "backup",
			"action", "backup_failed",
			"consecutive_failures", failures,
			"next_interval", interval.String(),
			"error", err,
		)
	}
}

// BackupNow runs one backup regardless of the enabled flag.
func (w *BackupWorker) BackupNow(ctx context.Context) (BackupResult, error) {
	var result BackupResult

	path, err := w.store.Backup(ctx, w.dir)
	if err != nil {
		metrics.BackupsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return result, fmt.Errorf("write backup: %w", err)
	}
	result.Path = path

	key, err := w.uploader.Upload(ctx, path)
	if err != nil {
		metrics.BackupsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return result, fmt.Errorf("upload backup: %w", err)
	}
	result.ObjectKey = key

	pruned, err := backup.Prune(w.dir, w.keep)
	result.Pruned = pruned
	if err != nil {
		slog.Warn("backup prune failed",
			"component", "worker",
			"worker", "backup",
			"action", "backup_prune",
			"error", err,
		)
	}

	result.Purged = w.purge(ctx)

	metrics.BackupsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	slog.Info("backup completed",
		"component", "worker",
		"worker", "backup",
		"action", "backup_complete",
		"path", result.Path,
		"object_key", result.ObjectKey,
		"pruned", len(result.Pruned),
		"purged", result.Purged,
	)
	return result, nil
}

// purge drops completed queue entries older than the retention window.
func (w *BackupWorker) purge(ctx context.Context) int64 {
	if w.retention <= 0 {
		return 0
	}
	n, err := w.store.PurgeCompletedSync(ctx, time.Now().Add(-w.retention))
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("sync queue purge failed",
				"component", "worker",
				"worker", "backup",
				"action", "queue_purge",
				"error", err,
			)
		}
		return 0
	}
	return n
}
