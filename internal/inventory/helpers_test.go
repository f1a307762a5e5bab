package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/stockroom/internal/cache"
	"github.com/hyperengineering/stockroom/internal/mirror"
	"github.com/hyperengineering/stockroom/internal/store"
	stocksync "github.com/hyperengineering/stockroom/internal/sync"
	"github.com/hyperengineering/stockroom/internal/validation"
)

// testNow is a Monday.
var testNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

// mockMirror implements the Mirror interface for testing.
type mockMirror struct {
	mu      sync.Mutex
	online  bool
	err     error
	docs    map[string]json.RawMessage
	writes  []string
	deletes []string

	// entered is closed when the next Put starts; that Put then waits for
	// release.
	entered chan struct{}
	release chan struct{}
}

func newMockMirror(online bool) *mockMirror {
	return &mockMirror{online: online, docs: make(map[string]json.RawMessage)}
}

func (m *mockMirror) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *mockMirror) Put(ctx context.Context, collection, id string, doc json.RawMessage) error {
	m.mu.Lock()
	entered, release := m.entered, m.release
	m.entered, m.release = nil, nil
	m.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		m.online = false
		return m.err
	}
	key := collection + "/" + id
	m.docs[key] = doc
	m.writes = append(m.writes, key)
	return nil
}

func (m *mockMirror) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		m.online = false
		return m.err
	}
	key := collection + "/" + id
	delete(m.docs, key)
	m.deletes = append(m.deletes, key)
	return nil
}

// blockNextPut holds the next Put until the returned release is closed.
func (m *mockMirror) blockNextPut() (entered <-chan struct{}, release chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entered = make(chan struct{})
	m.release = make(chan struct{})
	return m.entered, m.release
}

func (m *mockMirror) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockMirror) doc(collection, id string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection+"/"+id]
	return d, ok
}

func (m *mockMirror) getWrites() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

var errMirrorDown = fmt.Errorf("%w: connection refused", mirror.ErrRemoteUnavailable)

type fixture struct {
	store         *store.SQLiteStore
	mirror        *mockMirror
	cache         *cache.Cache
	products      *ProductService
	residues      *ResidueService
	groups        *GroupService
	notifications *NotificationService
	settings      *SettingsService
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	return newFixtureAt(t, online, testNow)
}

// newFixtureAt builds a fixture whose clock is fixed at now.
func newFixtureAt(t *testing.T, online bool, now time.Time) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clock := func() time.Time { return now }
	var mu sync.Mutex
	seq := 0
	newID := func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("01TEST%04d", seq)
	}

	m := newMockMirror(online)
	c := cache.New(s, 0, clock)
	d := Deps{
		Store:      s,
		Replicator: NewReplicator(m, s),
		Cache:      c,
		Now:        clock,
		NewID:      newID,
	}
	notifications := NewNotificationService(d)
	return &fixture{
		store:         s,
		mirror:        m,
		cache:         c,
		products:      NewProductService(d, KeywordClassifier, notifications),
		residues:      NewResidueService(d),
		groups:        NewGroupService(d),
		notifications: notifications,
		settings:      NewSettingsService(d),
	}
}

func (f *fixture) pending(t *testing.T) []stocksync.PendingOperation {
	t.Helper()
	ops, err := f.store.PendingSyncOperations(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	return ops
}

func (f *fixture) pendingFor(t *testing.T, collection string) []stocksync.PendingOperation {
	t.Helper()
	var out []stocksync.PendingOperation
	for _, op := range f.pending(t) {
		if op.Collection == collection {
			out = append(out, op)
		}
	}
	return out
}

func date(offsetDays int) string {
	return testNow.AddDate(0, 0, offsetDays).Format("2006-01-02")
}

// fieldNames returns the fields named by a validation error.
func fieldNames(t *testing.T, err error) map[string]bool {
	t.Helper()
	var ve *validation.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *validation.ValidationError", err)
	}
	fields := make(map[string]bool)
	for _, f := range ve.Fields {
		fields[f.Field] = true
	}
	return fields
}
