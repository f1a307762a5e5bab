package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/stockroom/internal/store"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the sync queue once",
	Long: "Probes the remote mirror and, when it is reachable, applies every " +
		"queued operation in order. Exits non-zero when the drain fails.",
	Args: cobra.NoArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
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

	result, err := eng.SyncNow(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		switch {
		case result.Deferred:
			fmt.Fprintln(out, "Remote unavailable, nothing applied")
		default:
			fmt.Fprintf(out, "Applied %s operations, parked %s\n",
				humanize.Comma(int64(result.Applied)), humanize.Comma(int64(result.DeadLettered)))
		}
	}

	if result.Failed {
		return fmt.Errorf("sync failed: %s", result.Error)
	}
	return nil
}
