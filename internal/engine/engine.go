// Package engine wires the local store, the remote mirror, the inventory
// services, the snapshot cache and the background workers into the single
// surface collaborators use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyperengineering/stockroom/internal/backup"
	"github.com/hyperengineering/stockroom/internal/cache"
	"github.com/hyperengineering/stockroom/internal/inventory"
	"github.com/hyperengineering/stockroom/internal/metrics"
	"github.com/hyperengineering/stockroom/internal/mirror"
	"github.com/hyperengineering/stockroom/internal/store"
	stocksync "github.com/hyperengineering/stockroom/internal/sync"
	"github.com/hyperengineering/stockroom/internal/types"
	"github.com/hyperengineering/stockroom/internal/worker"
)

// Errors returned by the entity surface.
var (
	ErrUnknownKind = errors.New("unknown entity kind")
	ErrUnsupported = errors.New("operation not supported for entity kind")
)

const (
	probeTimeout = 10 * time.Second
	statsTimeout = 2 * time.Second

	// backupCapFactor bounds the backup retry interval as a multiple of the
	// configured backup interval.
	backupCapFactor = 4
)

// Options configures an Engine. Zero values select defaults.
type Options struct {
	// Remote is the mirror transport. Nil runs in pure local mode.
	Remote   mirror.Remote
	ClientID string

	Uploader       backup.Uploader
	BackupDir      string
	BackupKeep     int
	QueueRetention time.Duration

	RefreshInterval time.Duration
	SyncBatchSize   int
	HistoryLimit    int

	Classifier inventory.Classifier
	Now        func() time.Time
	NewID      func() string
}

// Engine is the offline-first inventory engine.
type Engine struct {
	store  store.Store
	client *mirror.Client
	cache  *cache.Cache

	Products      *inventory.ProductService
	Residues      *inventory.ResidueService
	Groups        *inventory.GroupService
	Notifications *inventory.NotificationService
	Settings      *inventory.SettingsService

	syncWorker    *worker.SyncWorker
	backupWorker  *worker.BackupWorker
	refreshWorker *worker.RefreshWorker
}

// Status is a point-in-time view of the engine.
type Status struct {
	Online           bool                 `json:"online"`
	Queue            stocksync.QueueStats `json:"queue"`
	Sync             worker.SyncStatus    `json:"sync"`
	BackupEnabled    bool                 `json:"backup_enabled"`
	CacheRefreshedAt time.Time            `json:"cache_refreshed_at"`
}

// New builds an engine over st. Worker policies start from the stored
// settings and follow every settings update.
func New(ctx context.Context, st store.Store, opts Options) (*Engine, error) {
	if opts.Remote == nil {
		opts.Remote = mirror.NoopRemote{}
	}
	if opts.BackupDir == "" {
		opts.BackupDir = "backups"
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Minute
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = cache.DefaultHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	settings, err := st.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	e := &Engine{
		store:  st,
		client: mirror.NewClient(opts.Remote, nil, opts.ClientID),
		cache:  cache.New(st, opts.HistoryLimit, opts.Now),
	}

	deps := inventory.Deps{
		Store:      st,
		Replicator: inventory.NewReplicator(e.client, st),
		Cache:      e.cache,
		Now:        opts.Now,
		NewID:      opts.NewID,
	}
	e.Notifications = inventory.NewNotificationService(deps)
	e.Products = inventory.NewProductService(deps, opts.Classifier, e.Notifications)
	e.Residues = inventory.NewResidueService(deps)
	e.Groups = inventory.NewGroupService(deps)
	e.Settings = inventory.NewSettingsService(deps)

	e.syncWorker = worker.NewSyncWorker(st, e.client, syncPolicy(settings), settings.MaxRejections, opts.SyncBatchSize)
	e.backupWorker = worker.NewBackupWorker(st, opts.Uploader, opts.BackupDir, opts.BackupKeep,
		opts.QueueRetention, backupPolicy(settings), settings.BackupEnabled)
	e.refreshWorker = worker.NewRefreshWorker(e.cache, opts.RefreshInterval)

	e.Settings.OnChange(e.applySettings)
	return e, nil
}

func syncPolicy(s types.Settings) worker.Policy {
	return worker.Policy{Base: s.SyncInterval(), Cap: s.BackoffCap(), Threshold: s.FailureThreshold}
}

func backupPolicy(s types.Settings) worker.Policy {
	return worker.Policy{
		Base:      s.BackupInterval(),
		Cap:       backupCapFactor * s.BackupInterval(),
		Threshold: s.FailureThreshold,
	}
}

// applySettings reconfigures the workers and re-derives notifications.
func (e *Engine) applySettings(s types.Settings) {
	e.syncWorker.SetPolicy(syncPolicy(s), s.MaxRejections)
	e.backupWorker.SetPolicy(backupPolicy(s), s.BackupEnabled)

	slog.Info("settings applied",
		"component", "engine",
		"sync_interval", s.SyncInterval(),
		"backup_enabled", s.BackupEnabled,
	)

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if err := e.Notifications.EvaluateAll(ctx); err != nil {
		slog.Warn("notification re-evaluation failed",
			"component", "engine",
			"error", err,
		)
	}
}

// Start probes the remote, loads the cache and runs the background workers
// until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	online := e.client.IsAvailable(probeCtx)
	cancel()
	slog.Info("remote probed", "component", "engine", "online", online)

	if err := e.cache.Refresh(ctx); err != nil {
		return fmt.Errorf("initial refresh: %w", err)
	}
	if err := e.Notifications.EvaluateAll(ctx); err != nil {
		slog.Warn("initial notification evaluation failed",
			"component", "engine",
			"error", err,
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { e.syncWorker.Run(gctx); return nil })
	g.Go(func() error { e.backupWorker.Run(gctx); return nil })
	g.Go(func() error { e.refreshWorker.Run(gctx); return nil })
	return g.Wait()
}

// ConnectionStatus reports the last observed remote availability.
func (e *Engine) ConnectionStatus() bool {
	return e.client.Online()
}

// Refresh reloads the snapshot from the local store.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.cache.Refresh(ctx)
}

// Snapshot returns the current snapshot.
func (e *Engine) Snapshot() *cache.Snapshot {
	return e.cache.Load()
}

// ListCached returns the cached collection for kind.
func (e *Engine) ListCached(kind types.Kind) (any, error) {
	v, err := e.cache.Load().List(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return v, nil
}

// LowStock lists cached products at or below threshold; a non-positive
// threshold uses the configured one.
func (e *Engine) LowStock(threshold int) []types.Product {
	return e.Products.LowStock(threshold)
}

// ExpiringWithin lists cached products expiring within days.
func (e *Engine) ExpiringWithin(days int) []types.Product {
	return e.Products.ExpiringWithin(days)
}

// RegisterExit removes stock from a product.
func (e *Engine) RegisterExit(ctx context.Context, id string, in inventory.ExitInput) (*types.Product, error) {
	return e.Products.RegisterExit(ctx, id, in)
}

// SyncNow drains the queue immediately.
func (e *Engine) SyncNow(ctx context.Context) (worker.DrainResult, error) {
	return e.syncWorker.SyncNow(ctx)
}

// Backup writes, uploads and prunes a backup immediately.
func (e *Engine) Backup(ctx context.Context) (worker.BackupResult, error) {
	return e.backupWorker.BackupNow(ctx)
}

// QueueStats summarizes the sync queue.
func (e *Engine) QueueStats(ctx context.Context) (stocksync.QueueStats, error) {
	return e.store.SyncQueueStats(ctx)
}

// QueueDepth implements metrics.StatusSource.
func (e *Engine) QueueDepth() (pending, deadLetter int64) {
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	stats, err := e.store.SyncQueueStats(ctx)
	if err != nil {
		slog.Warn("queue depth unavailable", "component", "engine", "error", err)
		return 0, 0
	}
	return stats.Pending, stats.DeadLetter
}

// DeadLetters lists parked operations.
func (e *Engine) DeadLetters(ctx context.Context) ([]stocksync.PendingOperation, error) {
	return e.store.DeadLetterSyncOperations(ctx)
}

// RequeueDeadLetters returns parked operations to the queue. They are
// retried on the next drain.
func (e *Engine) RequeueDeadLetters(ctx context.Context) (int64, error) {
	n, err := e.store.RequeueDeadLetters(ctx)
	if err != nil {
		return 0, fmt.Errorf("requeue dead letters: %w", err)
	}
	slog.Info("dead letters requeued", "component", "engine", "count", n)
	return n, nil
}

// Status reports connectivity, queue and worker state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	stats, err := e.QueueStats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("queue stats: %w", err)
	}
	return Status{
		Online:           e.ConnectionStatus(),
		Queue:            stats,
		Sync:             e.syncWorker.Status(),
		BackupEnabled:    e.backupWorker.Enabled(),
		CacheRefreshedAt: e.cache.Load().RefreshedAt,
	}, nil
}

var _ metrics.StatusSource = (*Engine)(nil)
