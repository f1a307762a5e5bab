package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/stockroom/internal/metrics"
	"github.com/hyperengineering/stockroom/internal/mirror"
	stocksync "github.com/hyperengineering/stockroom/internal/sync"
)

// ErrDrainInProgress is returned by SyncNow while another drain is running.
var ErrDrainInProgress = errors.New("sync drain already in progress")

// State is the sync worker's scheduling state.
type State string

const (
	StateIdle     State = "idle"
	StateDraining State = "draining"
	StateBackoff  State = "backoff"
)

// SyncQueue defines the queue operations needed by the sync worker.
type SyncQueue interface {
	PendingSyncOperations(ctx context.Context, limit int) ([]stocksync.PendingOperation, error)
	MarkSyncCompleted(ctx context.Context, id int64) error
	RecordSyncFailure(ctx context.Context, id int64, message string, deadLetter bool) error
}

// Mirror defines the remote operations needed by the sync worker.
type Mirror interface {
	IsAvailable(ctx context.Context) bool
	Apply(ctx context.Context, op stocksync.PendingOperation) error
}

// SyncStatus is a point-in-time view of the sync worker.
type SyncStatus struct {
	State               State         `json:"state"`
	Interval            time.Duration `json:"interval"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastDrain           time.Time     `json:"last_drain,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Deferred     bool   `json:"deferred"`
	Applied      int    `json:"applied"`
	DeadLettered int    `json:"dead_lettered"`
	Failed       bool   `json:"failed"`
	Error        string `json:"error,omitempty"`
}

// SyncWorker drains the sync queue against the remote mirror on a timer,
// escalating its interval while drains keep failing.
type SyncWorker struct {
	queue     SyncQueue
	mirror    Mirror
	batchSize int

	// drainMu admits a single drain at a time, timer-driven or manual.
	drainMu sync.Mutex

	mu            sync.Mutex
	policy        Policy
	maxRejections int
	state         State
	failures      int
	interval      time.Duration
	lastDrain     time.Time
	lastError     string

	wake chan struct{}
}

// NewSyncWorker creates a sync worker. maxRejections is how many remote
// rejections an operation may collect before it is parked in the dead letter.
func NewSyncWorker(queue SyncQueue, m Mirror, policy Policy, maxRejections, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	w := &SyncWorker{
		queue:         queue,
		mirror:        m,
		batchSize:     batchSize,
		policy:        policy,
		maxRejections: maxRejections,
		state:         StateIdle,
		interval:      policy.Interval(0),
		wake:          make(chan struct{}, 1),
	}
	metrics.SyncIntervalSeconds.Set(w.interval.Seconds())
	return w
}

// Run starts the worker loop. Drains immediately on start, then each time
// the current interval elapses. Blocks until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context) {
	runLoop(ctx, "sync", w.currentInterval, w.wake, func(ctx context.Context) {
		if _, err := w.SyncNow(ctx); errors.Is(err, ErrDrainInProgress) {
			metrics.SyncDrainsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		}
	})
}

// SetPolicy replaces the interval policy and dead-letter limit. The new
// interval applies from the next wake.
func (w *SyncWorker) SetPolicy(policy Policy, maxRejections int) {
	w.mu.Lock()
	w.policy = policy
	w.maxRejections = maxRejections
	w.interval = policy.Interval(w.failures)
	if w.state != StateDraining {
		w.state = stateFor(policy, w.failures)
	}
	interval := w.interval
	w.mu.Unlock()

	metrics.SyncIntervalSeconds.Set(interval.Seconds())
	signal(w.wake)
}

// Status returns the worker's current state.
func (w *SyncWorker) Status() SyncStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return SyncStatus{
		State:               w.state,
		Interval:            w.interval,
		ConsecutiveFailures: w.failures,
		LastDrain:           w.lastDrain,
		LastError:           w.lastError,
	}
}

// State returns the worker's scheduling state.
func (w *SyncWorker) State() State {
	return w.Status().State
}

func (w *SyncWorker) currentInterval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.interval
}

// SyncNow drains the queue immediately. It returns ErrDrainInProgress without
// touching the queue when another drain is running.
func (w *SyncWorker) SyncNow(ctx context.Context) (DrainResult, error) {
	if !w.drainMu.TryLock() {
		return DrainResult{}, ErrDrainInProgress
	}
	defer w.drainMu.Unlock()

	return w.drain(ctx), nil
}

func (w *SyncWorker) drain(ctx context.Context) DrainResult {
	w.mu.Lock()
	w.state = StateDraining
	w.mu.Unlock()

	var result DrainResult

	if !w.mirror.IsAvailable(ctx) {
		result.Deferred = true
		w.mu.Lock()
		w.state = StateIdle
		w.mu.Unlock()

		metrics.SyncDrainsTotal.WithLabelValues(metrics.OutcomeDeferred).Inc()
		slog.Info("sync deferred, remote unavailable",
			"component", "worker",
			"worker", "sync",
			"action", "sync_deferred",
		)
		return result
	}

	err := w.applyPending(ctx, &result)
	if err != nil {
		result.Failed = true
		result.Error = err.Error()
	}

	w.finish(result)
	return result
}

// applyPending applies open operations in enqueue order, stopping at the
// first failure that is not parked in the dead letter.
func (w *SyncWorker) applyPending(ctx context.Context, result *DrainResult) error {
	w.mu.Lock()
	maxRejections := w.maxRejections
	w.mu.Unlock()

	type docKey struct{ collection, id string }

	for {
		ops, err := w.queue.PendingSyncOperations(ctx, w.batchSize)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			return nil
		}

		// Operations behind one parked in this pass wait for the next pass,
		// so a document's entries never apply out of order.
		parked := make(map[docKey]bool)
		progressed := false

		for _, op := range ops {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			key := docKey{op.Collection, op.DocumentID}
			if parked[key] {
				continue
			}

			applyErr := w.mirror.Apply(ctx, op)
			if applyErr == nil {
				if err := w.queue.MarkSyncCompleted(ctx, op.ID); err != nil {
					return err
				}
				result.Applied++
				progressed = true
				metrics.SyncAppliedTotal.Inc()
				continue
			}

			rejected := mirror.IsRejected(applyErr)
			deadLetter := rejected && maxRejections > 0 && op.Attempts+1 >= maxRejections
			if err := w.queue.RecordSyncFailure(ctx, op.ID, applyErr.Error(), deadLetter); err != nil {
				return err
			}

			class := "unavailable"
			if rejected {
				class = "rejected"
			}
			metrics.SyncFailuresTotal.WithLabelValues(class).Inc()

			if deadLetter {
				result.DeadLettered++
				parked[key] = true
				progressed = true
				metrics.SyncDeadLetteredTotal.Inc()
				slog.Error("sync operation parked in dead letter",
					"component", "worker",
					"worker", "sync",
					"action", "dead_letter",
					"op_id", op.ID,
					"operation", op.Operation,
					"collection", op.Collection,
					"document_id", op.DocumentID,
					"attempts", op.Attempts+1,
					"error", applyErr,
				)
				continue
			}

			if rejected {
				slog.Warn("remote rejected sync operation",
					"component", "worker",
					"worker", "sync",
					"action", "sync_rejected",
					"op_id", op.ID,
					"collection", op.Collection,
					"document_id", op.DocumentID,
					"attempts", op.Attempts+1,
					"error", applyErr,
				)
			} else {
				slog.Warn("sync operation failed",
					"component", "worker",
					"worker", "sync",
					"action", "sync_failed",
					"op_id", op.ID,
					"collection", op.Collection,
					"document_id", op.DocumentID,
					"error", applyErr,
				)
			}
			return applyErr
		}

		if !progressed {
			return nil
		}
	}
}

// finish records the drain outcome and picks the next state and interval.
func (w *SyncWorker) finish(result DrainResult) {
	w.mu.Lock()
	if result.Failed {
		w.failures++
		w.lastError = result.Error
	} else {
		w.failures = 0
		w.lastError = ""
	}
	w.lastDrain = time.Now()
	w.interval = w.policy.Interval(w.failures)
	w.state = stateFor(w.policy, w.failures)
	failures, interval, state := w.failures, w.interval, w.state
	w.mu.Unlock()

	metrics.SyncIntervalSeconds.Set(interval.Seconds())
	outcome := metrics.OutcomeSuccess
	if result.Failed {
		outcome = metrics.OutcomeFailed
	}
	metrics.SyncDrainsTotal.WithLabelValues(outcome).Inc()

	if result.Applied > 0 || result.Failed || result.DeadLettered > 0 {
		slog.Info("sync drain finished",
			"component", "worker",
			"worker", "sync",
			"action", "sync_drain",
			"applied", result.Applied,
			"dead_lettered", result.DeadLettered,
			"failed", result.Failed,
			"consecutive_failures", failures,
			"state", state,
			"next_interval", interval.String(),
		)
	}
}

func stateFor(p Policy, failures int) State {
	if p.Backoff(failures) {
		return StateBackoff
	}
	return StateIdle
}
