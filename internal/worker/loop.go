package worker

import (
	"context"
	"log/slog"
	"time"
)

// runLoop calls tick immediately and then after each interval returned by
// next, until ctx is cancelled. A value on wake cuts the current wait short.
func runLoop(ctx context.Context, name string, next func() time.Duration, wake <-chan struct{}, tick func(context.Context)) {
	slog.Info("worker started",
		"component", "worker",
		"worker", name,
	)

	tick(ctx)

	timer := time.NewTimer(next())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", name,
				"reason", "context_cancelled",
			)
			return
		case <-wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		tick(ctx)
		timer.Reset(next())
	}
}

// signal performs a non-blocking send on a buffered wake channel.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
