package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/stockroom/internal/store"
	stocksync "github.com/hyperengineering/stockroom/internal/sync"
)

// maxErrorWidth truncates last_error in the dead letter table.
const maxErrorWidth = 60

var (
	jsonOutput  bool
	requeueDead bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the sync queue",
	Long: "Shows how many operations wait for the remote mirror, lists operations " +
		"parked after repeated rejection and optionally returns them to the queue.",
	Args: cobra.NoArgs,
	RunE: runQueue,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	queueCmd.Flags().BoolVar(&requeueDead, "requeue-dead", false,
		"Return parked operations to the queue")
}

func runQueue(cmd *cobra.Command, args []string) error {
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

	var requeued int64
	if requeueDead {
		requeued, err = db.RequeueDeadLetters(ctx)
		if err != nil {
			return fmt.Errorf("requeue dead letters: %w", err)
		}
	}

	stats, err := db.SyncQueueStats(ctx)
	if err != nil {
		return fmt.Errorf("queue stats: %w", err)
	}
	dead, err := db.DeadLetterSyncOperations(ctx)
	if err != nil {
		return fmt.Errorf("list dead letters: %w", err)
	}

	if jsonOutput {
		if dead == nil {
			dead = []stocksync.PendingOperation{}
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"stats":        stats,
			"dead_letters": dead,
			"requeued":     requeued,
		})
	}

	out := cmd.OutOrStdout()
	if requeueDead {
		fmt.Fprintf(out, "Requeued %s parked operations\n", humanize.Comma(requeued))
	}
	fmt.Fprintf(out, "Pending:     %s\n", humanize.Comma(stats.Pending))
	fmt.Fprintf(out, "Dead letter: %s\n", humanize.Comma(stats.DeadLetter))
	fmt.Fprintf(out, "Completed:   %s\n", humanize.Comma(stats.Completed))
	if stats.OldestQueue != nil {
		fmt.Fprintf(out, "Oldest:      %s\n", humanize.Time(*stats.OldestQueue))
	}

	if len(dead) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w := newTabWriter(out)
	fmt.Fprintln(w, "ID\tOPERATION\tDOCUMENT\tATTEMPTS\tQUEUED\tLAST ERROR")
	for _, op := range dead {
		fmt.Fprintf(w, "%d\t%s\t%s/%s\t%d\t%s\t%s\n",
			op.ID,
			op.Operation,
			op.Collection,
			op.DocumentID,
			op.Attempts,
			humanize.Time(op.CreatedAt),
			truncate(op.LastError, maxErrorWidth),
		)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
