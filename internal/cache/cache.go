// Package cache holds the read-only snapshot of local state served to
// collaborators. The snapshot is rebuilt wholesale and swapped atomically, so
// readers never block and never observe a partial rebuild.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperengineering/stockroom/internal/metrics"
	"github.com/hyperengineering/stockroom/internal/store"
	"github.com/hyperengineering/stockroom/internal/types"
)

// DefaultHistoryLimit bounds the history entries held in a snapshot.
const DefaultHistoryLimit = 500

// Source loads local state inside a single read transaction.
type Source interface {
	ExecuteTransaction(ctx context.Context, fn func(tx *store.Tx) error) error
}

// Snapshot is an immutable view of every entity collection plus the derived
// low-stock and expiring lists.
type Snapshot struct {
	Products      []types.Product      `json:"products"`
	Residues      []types.Residue      `json:"residues"`
	Groups        []types.Group        `json:"groups"`
	Notifications []types.Notification `json:"notifications"`
	History       []types.HistoryEntry `json:"history"`
	Settings      types.Settings       `json:"settings"`
	LowStock      []types.Product      `json:"low_stock"`
	Expiring      []types.Product      `json:"expiring"`
	RefreshedAt   time.Time            `json:"refreshed_at"`
}

// List returns the collection for kind.
func (s *Snapshot) List(kind types.Kind) (any, error) {
	switch kind {
	case types.KindProducts:
		return s.Products, nil
	case types.KindResidues:
		return s.Residues, nil
	case types.KindGroups:
		return s.Groups, nil
	case types.KindNotifications:
		return s.Notifications, nil
	case types.KindHistory:
		return s.History, nil
	case types.KindSettings:
		return s.Settings, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

// Product returns the cached product with id.
func (s *Snapshot) Product(id string) (types.Product, bool) {
	for _, p := range s.Products {
		if p.ID == id {
			return p, true
		}
	}
	return types.Product{}, false
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Products:      []types.Product{},
		Residues:      []types.Residue{},
		Groups:        []types.Group{},
		Notifications: []types.Notification{},
		History:       []types.HistoryEntry{},
		Settings:      types.DefaultSettings(),
		LowStock:      []types.Product{},
		Expiring:      []types.Product{},
	}
}

// Cache owns the current snapshot.
type Cache struct {
	src          Source
	historyLimit int
	now          func() time.Time

	// mu serializes refreshes; readers go through snap only.
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

// New creates a cache over src. Until the first Refresh, Load returns an
// empty snapshot with default settings.
func New(src Source, historyLimit int, now func() time.Time) *Cache {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if now == nil {
		now = time.Now
	}
	c := &Cache{src: src, historyLimit: historyLimit, now: now}
	c.snap.Store(emptySnapshot())
	return c
}

// Load returns the current snapshot. It never blocks and never returns nil.
func (c *Cache) Load() *Snapshot {
	return c.snap.Load()
}

// Refresh rebuilds the snapshot from the local store and swaps it in.
// On error the previous snapshot stays in place.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	next := &Snapshot{}

	err := c.src.ExecuteTransaction(ctx, func(tx *store.Tx) error {
		var err error
		if next.Products, err = tx.ListProducts(ctx); err != nil {
			return err
		}
		if next.Residues, err = tx.ListResidues(ctx); err != nil {
			return err
		}
		if next.Groups, err = tx.ListGroups(ctx); err != nil {
			return err
		}
		if next.Notifications, err = tx.ListNotifications(ctx); err != nil {
			return err
		}
		if next.History, err = tx.ListHistory(ctx, c.historyLimit); err != nil {
			return err
		}
		next.Settings, err = tx.GetSettings(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("refresh cache: %w", err)
	}

	now := c.now()
	next.LowStock = LowStockBySettings(next.Products, next.Settings)
	next.Expiring = ExpiringWithin(next.Products, next.Settings.ExpiryWarningDays, now)
	next.RefreshedAt = now

	c.snap.Store(next)
	metrics.CacheRefreshSeconds.Observe(time.Since(start).Seconds())
	return nil
}
