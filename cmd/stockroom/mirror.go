package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/stockroom/internal/api"
	"github.com/hyperengineering/stockroom/internal/mirror"
)

var mirrorPort int

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Run the reference remote mirror",
	Long: "Serves the remote mirror document protocol from memory. Useful for " +
		"local development and for exercising sync against a real HTTP remote.",
	Args: cobra.NoArgs,
	RunE: runMirror,
}

func init() {
	mirrorCmd.Flags().IntVar(&mirrorPort, "port", 0, "Listen port (overrides config)")
}

func runMirror(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	port := cfg.Mirror.Port
	if mirrorPort > 0 {
		port = mirrorPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewMirrorRouter(api.NewMirrorHandler(mirror.NewDocuments(), cfg.Mirror.APIKey, Version)),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("mirror starting", "address", addr, "auth", cfg.Mirror.APIKey != "")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve mirror: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("mirror shutdown error", "error", err)
	}
	slog.Info("mirror stopped")
	return nil
}
