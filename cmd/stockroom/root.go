package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hyperengineering/stockroom/internal/api"
	"github.com/hyperengineering/stockroom/internal/backup"
	"github.com/hyperengineering/stockroom/internal/config"
	"github.com/hyperengineering/stockroom/internal/engine"
	"github.com/hyperengineering/stockroom/internal/metrics"
	"github.com/hyperengineering/stockroom/internal/mirror"
	"github.com/hyperengineering/stockroom/internal/store"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "stockroom",
	Short: "Stockroom - offline-first inventory engine",
	Long: "Runs the inventory engine: the local API, the sync worker that mirrors " +
		"local changes to the remote, cache refresh and scheduled backups.",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.AddCommand(mirrorCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(backupCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration and logger
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	// 3. Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("store close error", "error", err)
		}
	}()
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 4. Engine
	eng, err := newEngine(ctx, cfg, db)
	if err != nil {
		return err
	}

	// 5. HTTP router
	handler := api.NewHandler(eng, cfg.Server.APIKey, Version)
	router := api.NewRouter(handler, metrics.NewRegistry(eng))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 6. Workers and server share one lifecycle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Start(gctx)
	})
	g.Go(func() error {
		slog.Info("server starting", "address", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown initiated")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeout))
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("shutdown complete")
	return err
}

// loadConfig loads configuration and installs the default logger. The
// returned func closes the log file, if any.
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger, closer := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	slog.Info("configuration loaded", "level", cfg.Log.Level, "format", cfg.Log.Format)

	return cfg, func() {
		if closer != nil {
			closer.Close()
		}
	}, nil
}

// newEngine wires the engine from configuration.
func newEngine(ctx context.Context, cfg *config.Config, db store.Store) (*engine.Engine, error) {
	var remote mirror.Remote
	if cfg.Remote.URL != "" {
		remote = mirror.NewHTTPRemote(cfg.Remote.URL, cfg.Remote.APIKey, time.Duration(cfg.Remote.Timeout))
		slog.Info("remote mirror configured", "url", cfg.Remote.URL, "client_id", cfg.Remote.ClientID)
	} else {
		slog.Info("no remote mirror configured, running local only")
	}

	uploader, err := backup.NewUploader(cfg.Backup.Storage)
	if err != nil {
		return nil, fmt.Errorf("create backup uploader: %w", err)
	}

	eng, err := engine.New(ctx, db, engine.Options{
		Remote:          remote,
		ClientID:        cfg.Remote.ClientID,
		Uploader:        uploader,
		BackupDir:       cfg.Backup.Dir,
		BackupKeep:      cfg.Backup.Keep,
		QueueRetention:  time.Duration(cfg.Worker.QueueRetention),
		RefreshInterval: time.Duration(cfg.Worker.RefreshInterval),
		SyncBatchSize:   cfg.Worker.SyncBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	return eng, nil
}
