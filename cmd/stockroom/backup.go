package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/stockroom/internal/backup"
	"github.com/hyperengineering/stockroom/internal/store"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a database backup now",
	Long: "Copies the database into the backup directory, uploads it to object " +
		"storage when configured and prunes old local copies.",
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	eng, err := newEngine(ctx, cfg, db)
	if err != nil {
		return err
	}

	result, err := eng.Backup(ctx)
	if err != nil {
		return err
	}

	var downloadURL string
	if result.ObjectKey != "" {
		uploader, err := backup.NewUploader(cfg.Backup.Storage)
		if err != nil {
			return fmt.Errorf("create backup uploader: %w", err)
		}
		u, _, err := uploader.PresignedURL(ctx, result.ObjectKey)
		switch {
		case err == nil:
			downloadURL = u
		case !errors.Is(err, backup.ErrNotConfigured):
			slog.Warn("presign backup url failed", "key", result.ObjectKey, "error", err)
		}
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"backup":       result,
			"download_url": downloadURL,
		})
	}

	out := cmd.OutOrStdout()
	size := "unknown size"
	if info, err := os.Stat(result.Path); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	fmt.Fprintf(out, "Backup written to %s (%s)\n", result.Path, size)
	if result.ObjectKey != "" {
		fmt.Fprintf(out, "Uploaded as %s\n", result.ObjectKey)
	}
	if downloadURL != "" {
		fmt.Fprintf(out, "Download: %s\n", downloadURL)
	}
	if len(result.Pruned) > 0 {
		fmt.Fprintf(out, "Pruned %d old backups\n", len(result.Pruned))
	}
	if result.Purged > 0 {
		fmt.Fprintf(out, "Purged %s applied queue entries\n", humanize.Comma(result.Purged))
	}
	return nil
}
