package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	stocksync "github.com/hyperengineering/stockroom/internal/sync"
)

const pendingColumns = `id, operation, collection, document_id, payload, created_at,
	completed, attempts, last_error, dead_letter`

// EnqueueSync durably appends a pending operation and returns its id.
func (q queries) EnqueueSync(ctx context.Context, op stocksync.PendingOperation) (int64, error) {
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	result, err := q.q.ExecContext(ctx, `
		INSERT INTO pending_sync_operations (operation, collection, document_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(op.Operation), op.Collection, op.DocumentID, nullablePayload(op.Payload), formatTime(op.CreatedAt))
	if err != nil {
		return 0, storeErr("enqueue sync operation", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, storeErr("enqueue sync operation", err)
	}
	return id, nil
}

// PendingSyncOperations returns open (not completed, not dead-lettered)
// operations in enqueue order. Operations queued behind a parked operation on
// the same document are held back until it is requeued. limit <= 0 returns
// all of them.
func (q queries) PendingSyncOperations(ctx context.Context, limit int) ([]stocksync.PendingOperation, error) {
	if limit <= 0 {
		limit = -1
	}
	return q.listPending(ctx, `
		SELECT `+pendingColumns+`
		FROM pending_sync_operations p
		WHERE p.completed = 0 AND p.dead_letter = 0
		  AND NOT EXISTS (
			SELECT 1 FROM pending_sync_operations d
			WHERE d.completed = 0 AND d.dead_letter = 1
			  AND d.collection = p.collection
			  AND d.document_id = p.document_id
			  AND d.id < p.id
		  )
		ORDER BY p.id ASC
		LIMIT ?
	`, limit)
}

// DeadLetterSyncOperations returns parked operations in enqueue order.
func (q queries) DeadLetterSyncOperations(ctx context.Context) ([]stocksync.PendingOperation, error) {
	return q.listPending(ctx, `
		SELECT `+pendingColumns+`
		FROM pending_sync_operations
		WHERE completed = 0 AND dead_letter = 1
		ORDER BY id ASC
	`)
}

func (q queries) listPending(ctx context.Context, query string, args ...any) ([]stocksync.PendingOperation, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query sync queue", err)
	}
	defer rows.Close()

	ops := make([]stocksync.PendingOperation, 0)
	for rows.Next() {
		var op stocksync.PendingOperation
		var operation, createdAt string
		var payload, lastError sql.NullString

		if err := rows.Scan(&op.ID, &operation, &op.Collection, &op.DocumentID, &payload, &createdAt,
			&op.Completed, &op.Attempts, &lastError, &op.DeadLetter); err != nil {
			return nil, storeErr("scan sync operation", err)
		}

		if op.Operation, err = stocksync.ParseOperation(operation); err != nil {
			return nil, storeErr("scan sync operation", err)
		}
		if payload.Valid {
			op.Payload = json.RawMessage(payload.String)
		}
		op.LastError = lastError.String
		op.CreatedAt = parseTime("pending_sync_operations.created_at", createdAt)

		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate sync queue", err)
	}
	return ops, nil
}

// MarkSyncCompleted marks an operation as applied remotely. Unknown or already
// completed ids are a no-op.
func (q queries) MarkSyncCompleted(ctx context.Context, id int64) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE pending_sync_operations SET completed = 1 WHERE id = ? AND completed = 0`, id)
	if err != nil {
		return storeErr("mark sync completed", err)
	}
	return nil
}

// RecordSyncFailure increments the attempt count of an operation, stores the
// failure message and optionally parks it in the dead letter.
func (q queries) RecordSyncFailure(ctx context.Context, id int64, message string, deadLetter bool) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE pending_sync_operations
		SET attempts = attempts + 1,
		    last_error = ?,
		    dead_letter = CASE WHEN ? THEN 1 ELSE dead_letter END
		WHERE id = ? AND completed = 0
	`, message, deadLetter, id)
	if err != nil {
		return storeErr("record sync failure", err)
	}
	return nil
}

// HasPendingFor reports whether an open or parked operation exists for the
// document. Parked operations still count so later writes never overtake them.
func (q queries) HasPendingFor(ctx context.Context, collection, documentID string) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_sync_operations
		WHERE completed = 0 AND collection = ? AND document_id = ?
	`, collection, documentID).Scan(&n)
	if err != nil {
		return false, storeErr("check pending sync", err)
	}
	return n > 0, nil
}

// SyncQueueStats summarizes the queue.
func (q queries) SyncQueueStats(ctx context.Context) (stocksync.QueueStats, error) {
	var stats stocksync.QueueStats
	var oldest sql.NullString

	err := q.q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN completed = 0 AND dead_letter = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN completed = 0 AND dead_letter = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN completed = 1 THEN 1 ELSE 0 END), 0),
			MIN(CASE WHEN completed = 0 AND dead_letter = 0 THEN created_at END)
		FROM pending_sync_operations
	`).Scan(&stats.Pending, &stats.DeadLetter, &stats.Completed, &oldest)
	if err != nil {
		return stats, storeErr("sync queue stats", err)
	}

	if oldest.Valid {
		t := parseTime("pending_sync_operations.created_at", oldest.String)
		stats.OldestQueue = &t
	}
	return stats, nil
}

// RequeueDeadLetters returns parked operations to the open queue with their
// attempt counters reset. It returns how many were requeued.
func (q queries) RequeueDeadLetters(ctx context.Context) (int64, error) {
	result, err := q.q.ExecContext(ctx, `
		UPDATE pending_sync_operations
		SET dead_letter = 0, attempts = 0
		WHERE completed = 0 AND dead_letter = 1
	`)
	if err != nil {
		return 0, storeErr("requeue dead letters", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storeErr("requeue dead letters", err)
	}
	return n, nil
}

// PurgeCompletedSync removes completed operations created before the cutoff.
func (q queries) PurgeCompletedSync(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.q.ExecContext(ctx,
		`DELETE FROM pending_sync_operations WHERE completed = 1 AND created_at < ?`, formatTime(before))
	if err != nil {
		return 0, storeErr("purge completed sync operations", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storeErr("purge completed sync operations", err)
	}
	return n, nil
}

// nullablePayload converts a json.RawMessage to a sql-friendly value.
// Returns nil for empty payloads, string otherwise.
func nullablePayload(p json.RawMessage) any {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}
