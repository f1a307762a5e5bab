package store

import (
	"context"
	"time"

	stocksync "github.com/hyperengineering/stockroom/internal/sync"
	"github.com/hyperengineering/stockroom/internal/types"
)

// Reader is the read surface shared by the store and its transactions.
type Reader interface {
	Exists(ctx context.Context, kind types.Kind, id string) (bool, error)
	GetProduct(ctx context.Context, id string) (*types.Product, error)
	ListProducts(ctx context.Context) ([]types.Product, error)
	ListProductsByGroupAndExpiry(ctx context.Context, groupID string, expiry types.Date) ([]types.Product, error)
	CountProductsInGroup(ctx context.Context, groupID string) (int, error)
	GetGroup(ctx context.Context, id string) (*types.Group, error)
	ListGroups(ctx context.Context) ([]types.Group, error)
	GetResidue(ctx context.Context, id string) (*types.Residue, error)
	ListResidues(ctx context.Context) ([]types.Residue, error)
	GetNotification(ctx context.Context, id string) (*types.Notification, error)
	ListNotifications(ctx context.Context) ([]types.Notification, error)
	ListNotificationsForProduct(ctx context.Context, productID string) ([]types.Notification, error)
	ListHistory(ctx context.Context, limit int) ([]types.HistoryEntry, error)
	GetSettings(ctx context.Context) (types.Settings, error)
}

// SyncQueue is the durable pending-operation log.
type SyncQueue interface {
	EnqueueSync(ctx context.Context, op stocksync.PendingOperation) (int64, error)
	PendingSyncOperations(ctx context.Context, limit int) ([]stocksync.PendingOperation, error)
	DeadLetterSyncOperations(ctx context.Context) ([]stocksync.PendingOperation, error)
	MarkSyncCompleted(ctx context.Context, id int64) error
	RecordSyncFailure(ctx context.Context, id int64, message string, deadLetter bool) error
	HasPendingFor(ctx context.Context, collection, documentID string) (bool, error)
	SyncQueueStats(ctx context.Context) (stocksync.QueueStats, error)
	RequeueDeadLetters(ctx context.Context) (int64, error)
	PurgeCompletedSync(ctx context.Context, before time.Time) (int64, error)
}

// Store defines the contract of the local store.
type Store interface {
	Reader
	SyncQueue
	ExecuteTransaction(ctx context.Context, fn func(tx *Tx) error) error
	Backup(ctx context.Context, dir string) (string, error)
	Close() error
}

// Compile-time interface checks.
var (
	_ Store  = (*SQLiteStore)(nil)
	_ Reader = (*Tx)(nil)
)
