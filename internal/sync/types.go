// Package sync defines the pending-operation log that carries local mutations
// to the remote mirror.
package sync

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation is the kind of mutation a pending entry replays remotely.
type Operation string

// Operation constants
const (
	OperationAdd    Operation = "add"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// ParseOperation validates an operation name read from storage.
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OperationAdd, OperationUpdate, OperationDelete:
		return Operation(s), nil
	}
	return "", fmt.Errorf("unknown sync operation %q", s)
}

// IsWrite reports whether the operation sets a document (add or update).
func (o Operation) IsWrite() bool {
	return o == OperationAdd || o == OperationUpdate
}

// PendingOperation is a single entry in the sync queue.
type PendingOperation struct {
	ID         int64           `json:"id"`
	Operation  Operation       `json:"operation"`
	Collection string          `json:"collection"`
	DocumentID string          `json:"document_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Completed  bool            `json:"completed"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
	DeadLetter bool            `json:"dead_letter"`
}

// QueueStats summarizes the sync queue.
type QueueStats struct {
	Pending     int64      `json:"pending"`
	DeadLetter  int64      `json:"dead_letter"`
	Completed   int64      `json:"completed"`
	OldestQueue *time.Time `json:"oldest_pending,omitempty"`
}
