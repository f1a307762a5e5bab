// Package inventory implements the entity services. Every mutation commits to
// the local store first, then mirrors the committed documents through the
// Replicator and rebuilds the cache snapshot.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/stockroom/internal/cache"
	"github.com/hyperengineering/stockroom/internal/store"
	"github.com/hyperengineering/stockroom/internal/types"
)

// Field length limits.
const (
	maxNameLength  = 200
	maxShortLength = 100
	maxNotesLength = 1000
)

// Store is the local store surface used by the services.
type Store interface {
	store.Reader
	Queue
	ExecuteTransaction(ctx context.Context, fn func(tx *store.Tx) error) error
}

// Cache is the snapshot the services refresh after each mutation and read
// derived lists from.
type Cache interface {
	Refresh(ctx context.Context) error
	Load() *cache.Snapshot
}

// Deps are the collaborators shared by every service.
type Deps struct {
	Store      Store
	Replicator *Replicator
	Cache      Cache
	// Now defaults to time.Now.
	Now func() time.Time
	// NewID defaults to a ULID generator.
	NewID func() string
}

type base struct {
	Deps
}

func newBase(d Deps) base {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = func() string { return ulid.Make().String() }
	}
	return base{Deps: d}
}

// lock serializes a mutation from its local commit through replication.
// Callers release it with the returned func: defer s.lock()().
func (b *base) lock() func() {
	return b.Replicator.lock()
}

func (b *base) now() time.Time {
	return b.Now().UTC()
}

// finish mirrors committed changes and refreshes the cache. Only an enqueue
// failure is returned.
func (b *base) finish(ctx context.Context, changes []Change) error {
	var err error
	if len(changes) > 0 {
		err = b.Replicator.Replicate(ctx, changes...)
	}
	b.refresh(ctx)
	return err
}

func (b *base) refresh(ctx context.Context) {
	if b.Cache == nil {
		return
	}
	if err := b.Cache.Refresh(ctx); err != nil {
		slog.Warn("cache refresh after mutation failed",
			"component", "inventory",
			"error", err,
		)
	}
}

// verifyDeleted re-reads the local store after a delete.
func (b *base) verifyDeleted(ctx context.Context, kind types.Kind, id string) error {
	exists, err := b.Store.Exists(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("verify delete %s/%s: %w", kind, id, err)
	}
	if exists {
		return fmt.Errorf("%s/%s: %w", kind, id, ErrDeleteNotApplied)
	}
	return nil
}

// notFound maps the store's sentinel to the service one.
func notFound(kind types.Kind, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	return err
}
