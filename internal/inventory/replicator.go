package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hyperengineering/stockroom/internal/metrics"
	stocksync "github.com/hyperengineering/stockroom/internal/sync"
	"github.com/hyperengineering/stockroom/internal/types"
)

// Mirror is the remote write path used by the replicator.
type Mirror interface {
	Online() bool
	Put(ctx context.Context, collection, id string, doc json.RawMessage) error
	Delete(ctx context.Context, collection, id string) error
}

// Queue is the durable fallback for writes that were not mirrored.
type Queue interface {
	HasPendingFor(ctx context.Context, collection, documentID string) (bool, error)
	EnqueueSync(ctx context.Context, op stocksync.PendingOperation) (int64, error)
}

// Change is a committed local mutation to mirror.
type Change struct {
	Operation stocksync.Operation
	Kind      types.Kind
	ID        string
	// Entity is marshaled as the document payload for add and update.
	Entity any
}

func upsertChange(op stocksync.Operation, e types.Entity) Change {
	return Change{Operation: op, Kind: e.EntityKind(), ID: e.EntityID(), Entity: e}
}

func deleteChange(kind types.Kind, id string) Change {
	return Change{Operation: stocksync.OperationDelete, Kind: kind, ID: id}
}

// Replicator mirrors committed changes, writing directly when the remote is
// online and nothing is queued for the same document, and enqueueing
// otherwise.
//
// Services hold the write lock from local commit until replication returns,
// so the mirror receives every document's versions in commit order.
type Replicator struct {
	mirror Mirror
	queue  Queue

	writeMu sync.Mutex
}

// NewReplicator creates a replicator.
func NewReplicator(m Mirror, q Queue) *Replicator {
	return &Replicator{mirror: m, queue: q}
}

// lock takes the write lock and returns its release.
func (r *Replicator) lock() func() {
	r.writeMu.Lock()
	return r.writeMu.Unlock
}

// Replicate mirrors changes in order. Remote failures are absorbed into the
// queue; only failures to enqueue are returned, since those changes would
// otherwise be lost. A failed change does not stop the ones after it.
func (r *Replicator) Replicate(ctx context.Context, changes ...Change) error {
	var errs []error
	for _, c := range changes {
		if err := r.replicate(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Replicator) replicate(ctx context.Context, c Change) error {
	collection := string(c.Kind)

	var payload json.RawMessage
	if c.Operation.IsWrite() {
		data, err := json.Marshal(c.Entity)
		if err != nil {
			return fmt.Errorf("marshal %s/%s: %w", collection, c.ID, err)
		}
		payload = data
	}

	if r.mirror.Online() {
		queued, err := r.queue.HasPendingFor(ctx, collection, c.ID)
		if err != nil {
			slog.Warn("pending check failed, queueing change",
				"component", "replicator",
				"collection", collection,
				"document_id", c.ID,
				"error", err,
			)
		}
		if err == nil && !queued {
			werr := r.write(ctx, c, payload)
			if werr == nil {
				metrics.ReplicatedTotal.WithLabelValues(collection, metrics.OutcomeDirect).Inc()
				return nil
			}
			slog.Warn("mirrored write failed, queueing change",
				"component", "replicator",
				"action", "write_failed",
				"operation", c.Operation,
				"collection", collection,
				"document_id", c.ID,
				"error", werr,
			)
		}
	}

	_, err := r.queue.EnqueueSync(ctx, stocksync.PendingOperation{
		Operation:  c.Operation,
		Collection: collection,
		DocumentID: c.ID,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s %s/%s: %w", c.Operation, collection, c.ID, err)
	}
	metrics.ReplicatedTotal.WithLabelValues(collection, metrics.OutcomeQueued).Inc()
	return nil
}

func (r *Replicator) write(ctx context.Context, c Change, payload json.RawMessage) error {
	if c.Operation == stocksync.OperationDelete {
		return r.mirror.Delete(ctx, string(c.Kind), c.ID)
	}
	return r.mirror.Put(ctx, string(c.Kind), c.ID, payload)
}
