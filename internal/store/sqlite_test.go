package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	stocksync "github.com/hyperengineering/stockroom/internal/sync"
	"github.com/hyperengineering/stockroom/internal/types"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustDate(t *testing.T, s string) types.Date {
	t.Helper()
	d, err := types.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func sampleProduct(t *testing.T, id, name string) types.Product {
	return types.Product{
		ID:             id,
		Name:           name,
		GroupID:        types.DefaultGroupID,
		Lot:            "L1",
		Quantity:       100,
		Unit:           "kg",
		ExpiryDate:     mustDate(t, "2026-11-01"),
		EntryDate:      mustDate(t, "2026-10-19"),
		WeeklyUsage:    [7]int{0, 1, 2, 3, 4, 5, 6},
		LastUpdateDate: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_NewSQLiteStore(t *testing.T) {
	db, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
}

func TestStore_NewSQLiteStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "stockroom.db")
	db, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

// --- Products ---

func TestUpsertProduct_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := sampleProduct(t, "p1", "Flour")

	if err := s.UpsertProduct(ctx, want); err != nil {
		t.Fatalf("UpsertProduct failed: %v", err)
	}

	got, err := s.GetProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if got.Name != want.Name || got.Quantity != want.Quantity || got.Lot != want.Lot || got.Unit != want.Unit {
		t.Errorf("GetProduct = %+v, want %+v", got, want)
	}
	if got.ExpiryDate != want.ExpiryDate || got.EntryDate != want.EntryDate {
		t.Errorf("dates = %s/%s, want %s/%s", got.ExpiryDate, got.EntryDate, want.ExpiryDate, want.EntryDate)
	}
	if got.WeeklyUsage != want.WeeklyUsage {
		t.Errorf("WeeklyUsage = %v, want %v", got.WeeklyUsage, want.WeeklyUsage)
	}
	if !got.LastUpdateDate.Equal(want.LastUpdateDate) {
		t.Errorf("LastUpdateDate = %v, want %v", got.LastUpdateDate, want.LastUpdateDate)
	}
}

func TestUpsertProduct_ReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := sampleProduct(t, "p1", "Flour")

	if err := s.UpsertProduct(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Quantity = 7
	if err := s.UpsertProduct(ctx, p); err != nil {
		t.Fatal(err)
	}

	products, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 1 || products[0].Quantity != 7 {
		t.Errorf("ListProducts = %+v, want one product with quantity 7", products)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProduct(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProduct error = %v, want ErrNotFound", err)
	}
}

func TestListProducts_OrderedByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for id, name := range map[string]string{"a": "sugar", "b": "Apple", "c": "flour"} {
		if err := s.UpsertProduct(ctx, sampleProduct(t, id, name)); err != nil {
			t.Fatal(err)
		}
	}

	products, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range products {
		names = append(names, p.Name)
	}
	if len(names) != 3 || names[0] != "Apple" || names[1] != "flour" || names[2] != "sugar" {
		t.Errorf("order = %v, want [Apple flour sugar]", names)
	}
}

func TestListProductsByGroupAndExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	match := sampleProduct(t, "p1", "Flour")
	otherExpiry := sampleProduct(t, "p2", "Flour")
	otherExpiry.ExpiryDate = mustDate(t, "2026-12-01")

	for _, p := range []types.Product{match, otherExpiry} {
		if err := s.UpsertProduct(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListProductsByGroupAndExpiry(ctx, types.DefaultGroupID, match.ExpiryDate)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("got %+v, want only p1", got)
	}

	n, err := s.CountProductsInGroup(ctx, types.DefaultGroupID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountProductsInGroup = %d, want 2", n)
	}
}

func TestDeleteProduct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertProduct(ctx, sampleProduct(t, "p1", "Flour")); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteProduct(ctx, "p1"); err != nil {
		t.Fatalf("DeleteProduct failed: %v", err)
	}

	exists, err := s.Exists(ctx, types.KindProducts, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("product still exists after delete")
	}

	if err := s.DeleteProduct(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteProduct error = %v, want ErrNotFound", err)
	}
}

func TestUpsertProduct_RejectsNegativeQuantity(t *testing.T) {
	s := newTestStore(t)
	p := sampleProduct(t, "p1", "Flour")
	p.Quantity = -1

	err := s.UpsertProduct(context.Background(), p)
	var lse *LocalStoreError
	if !errors.As(err, &lse) {
		t.Errorf("UpsertProduct error = %v, want *LocalStoreError", err)
	}
}

// --- Groups, residues, notifications, history, settings ---

func TestGroups_DefaultSeededAndCreationOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, g := range []types.Group{
		{ID: "01B", Name: "Dairy", Keywords: []string{"milk"}},
		{ID: "01A", Name: "Bakery"},
	} {
		if err := s.UpsertGroup(ctx, g); err != nil {
			t.Fatal(err)
		}
	}

	groups, err := s.ListGroups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 3 {
		t.Fatalf("ListGroups returned %d groups, want 3", len(groups))
	}
	if groups[0].ID != "01A" || groups[1].ID != "01B" || groups[2].ID != types.DefaultGroupID {
		t.Errorf("groups not ordered by id: %+v", groups)
	}
	if groups[0].Keywords == nil {
		t.Error("nil keywords should load as empty slice")
	}
	if len(groups[1].Keywords) != 1 || groups[1].Keywords[0] != "milk" {
		t.Errorf("keywords = %v, want [milk]", groups[1].Keywords)
	}
}

func TestResidues_RoundTripAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := types.Residue{ID: "r1", Kind: "organic", Weight: 2.5, Unit: "kg", Date: mustDate(t, "2026-10-18")}
	if err := s.UpsertResidue(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetResidue(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != "organic" || got.Weight != 2.5 || got.Date != r.Date {
		t.Errorf("GetResidue = %+v", got)
	}

	if err := s.DeleteResidue(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetResidue(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetResidue after delete error = %v", err)
	}
}

func TestNotifications_ForProduct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, n := range []types.Notification{
		{ID: "low_stock:p1", Kind: types.NotificationLowStock, ProductID: "p1", Message: "low", CreatedAt: now},
		{ID: "expiry:p1", Kind: types.NotificationExpiry, ProductID: "p1", Message: "soon", CreatedAt: now},
		{ID: "expiry:p2", Kind: types.NotificationExpiry, ProductID: "p2", Message: "soon", CreatedAt: now},
	} {
		if err := s.UpsertNotification(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListNotificationsForProduct(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("ListNotificationsForProduct returned %d, want 2", len(got))
	}

	all, err := s.ListNotifications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("ListNotifications returned %d, want 3", len(all))
	}
}

func TestHistory_NewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"h1", "h2", "h3"} {
		h := types.HistoryEntry{
			ID: id, ProductID: "p1", ProductName: "Flour", Quantity: i + 1,
			ExitType: types.ExitSale, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AppendHistory(ctx, h); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListHistory(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "h3" || got[1].ID != "h2" {
		t.Errorf("ListHistory(2) = %+v, want h3, h2", got)
	}

	all, err := s.ListHistory(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("ListHistory(0) returned %d, want 3", len(all))
	}
}

func TestSettings_DefaultsWhenAbsent(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetSettings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != types.DefaultSettings() {
		t.Errorf("GetSettings = %+v, want defaults", got)
	}
}

func TestSettings_PutAppliesDefaultsOnRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutSettings(ctx, types.Settings{LowStockThreshold: 12, SyncIntervalSeconds: -4}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.LowStockThreshold != 12 {
		t.Errorf("LowStockThreshold = %d, want 12", got.LowStockThreshold)
	}
	if got.SyncIntervalSeconds != 30 {
		t.Errorf("SyncIntervalSeconds = %d, want default 30", got.SyncIntervalSeconds)
	}
}

func TestExists_UnknownKind(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Exists(context.Background(), types.Kind("widgets"), "x"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

// --- Transactions ---

func TestExecuteTransaction_Commits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.ExecuteTransaction(ctx, func(tx *Tx) error {
		return tx.UpsertProduct(ctx, sampleProduct(t, "p1", "Flour"))
	})
	if err != nil {
		t.Fatalf("ExecuteTransaction failed: %v", err)
	}

	if _, err := s.GetProduct(ctx, "p1"); err != nil {
		t.Errorf("committed product not visible: %v", err)
	}
}

func TestExecuteTransaction_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sentinel := errors.New("business rule failed")

	err := s.ExecuteTransaction(ctx, func(tx *Tx) error {
		if err := tx.UpsertProduct(ctx, sampleProduct(t, "p1", "Flour")); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("ExecuteTransaction error = %v, want sentinel", err)
	}

	if _, err := s.GetProduct(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rolled back product visible, err = %v", err)
	}
}

func TestExecuteTransaction_RollsBackOnPanic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = s.ExecuteTransaction(ctx, func(tx *Tx) error {
			if err := tx.UpsertProduct(ctx, sampleProduct(t, "p1", "Flour")); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	// The single connection must be released for this read to succeed.
	if _, err := s.GetProduct(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("product visible after panic, err = %v", err)
	}
}

func TestConcurrentTransactions(t *testing.T) {
	db, err := NewSQLiteStore(filepath.Join(t.TempDir(), "concurrent.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			err := db.ExecuteTransaction(ctx, func(tx *Tx) error {
				return tx.UpsertProduct(ctx, sampleProduct(t, id, "Item "+id))
			})
			if err != nil {
				errs <- err
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.ListProducts(ctx); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent access error: %v", err)
	}

	products, err := db.ListProducts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 10 {
		t.Errorf("got %d products, want 10", len(products))
	}
}

// --- Sync queue ---

func enqueue(t *testing.T, s *SQLiteStore, op stocksync.Operation, collection, id string) int64 {
	t.Helper()
	seq, err := s.EnqueueSync(context.Background(), stocksync.PendingOperation{
		Operation:  op,
		Collection: collection,
		DocumentID: id,
		Payload:    json.RawMessage(`{"id":"` + id + `"}`),
	})
	if err != nil {
		t.Fatalf("EnqueueSync failed: %v", err)
	}
	return seq
}

func TestSyncQueue_PendingInEnqueueOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := enqueue(t, s, stocksync.OperationAdd, "products", "p1")
	second := enqueue(t, s, stocksync.OperationUpdate, "products", "p1")
	third := enqueue(t, s, stocksync.OperationDelete, "products", "p1")

	ops, err := s.PendingSyncOperations(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 3 {
		t.Fatalf("pending = %d, want 3", len(ops))
	}
	if ops[0].ID != first || ops[1].ID != second || ops[2].ID != third {
		t.Errorf("pending order = %d,%d,%d", ops[0].ID, ops[1].ID, ops[2].ID)
	}
	if ops[0].Operation != stocksync.OperationAdd || string(ops[0].Payload) != `{"id":"p1"}` {
		t.Errorf("first op = %+v", ops[0])
	}
	if ops[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	limited, err := s.PendingSyncOperations(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limited pending = %d, want 2", len(limited))
	}
}

func TestSyncQueue_DeletePayloadIsNull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnqueueSync(ctx, stocksync.PendingOperation{
		Operation: stocksync.OperationDelete, Collection: "products", DocumentID: "p1",
	}); err != nil {
		t.Fatal(err)
	}

	ops, err := s.PendingSyncOperations(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].Payload != nil {
		t.Errorf("ops = %+v, want one op with nil payload", ops)
	}
}

func TestSyncQueue_MarkCompletedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := enqueue(t, s, stocksync.OperationAdd, "products", "p1")

	for i := 0; i < 2; i++ {
		if err := s.MarkSyncCompleted(ctx, id); err != nil {
			t.Fatalf("MarkSyncCompleted #%d failed: %v", i+1, err)
		}
	}
	if err := s.MarkSyncCompleted(ctx, 9999); err != nil {
		t.Errorf("MarkSyncCompleted(unknown) error = %v, want nil", err)
	}

	ops, err := s.PendingSyncOperations(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 0 {
		t.Errorf("completed entry still pending: %+v", ops)
	}

	stats, err := s.SyncQueueStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Completed != 1 || stats.Pending != 0 || stats.OldestQueue != nil {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSyncQueue_HasPendingFor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := enqueue(t, s, stocksync.OperationAdd, "products", "p1")

	has, err := s.HasPendingFor(ctx, "products", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("HasPendingFor = false, want true")
	}

	has, _ = s.HasPendingFor(ctx, "products", "p2")
	if has {
		t.Error("HasPendingFor(p2) = true, want false")
	}

	if err := s.MarkSyncCompleted(ctx, id); err != nil {
		t.Fatal(err)
	}
	has, _ = s.HasPendingFor(ctx, "products", "p1")
	if has {
		t.Error("HasPendingFor after completion = true, want false")
	}
}

func TestSyncQueue_DeadLetterLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parked := enqueue(t, s, stocksync.OperationAdd, "products", "p1")
	enqueue(t, s, stocksync.OperationAdd, "products", "p2")

	if err := s.RecordSyncFailure(ctx, parked, "remote rejected: 400", false); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSyncFailure(ctx, parked, "remote rejected: 400", true); err != nil {
		t.Fatal(err)
	}

	pending, err := s.PendingSyncOperations(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].DocumentID != "p2" {
		t.Errorf("pending = %+v, want only p2", pending)
	}

	dead, err := s.DeadLetterSyncOperations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 1 || dead[0].Attempts != 2 || dead[0].LastError != "remote rejected: 400" {
		t.Errorf("dead letters = %+v", dead)
	}

	// A parked op still blocks direct writes for the same document.
	has, _ := s.HasPendingFor(ctx, "products", "p1")
	if !has {
		t.Error("HasPendingFor(parked doc) = false, want true")
	}

	stats, err := s.SyncQueueStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 1 || stats.DeadLetter != 1 {
		t.Errorf("stats = %+v", stats)
	}

	n, err := s.RequeueDeadLetters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("RequeueDeadLetters = %d, want 1", n)
	}
	pending, _ = s.PendingSyncOperations(ctx, 0)
	if len(pending) != 2 || pending[0].ID != parked || pending[0].Attempts != 0 {
		t.Errorf("after requeue pending = %+v", pending)
	}
}

func TestSyncQueue_ParkedOpHoldsBackLaterOpsForDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parked := enqueue(t, s, stocksync.OperationAdd, "products", "p1")
	later := enqueue(t, s, stocksync.OperationUpdate, "products", "p1")
	other := enqueue(t, s, stocksync.OperationAdd, "products", "p2")

	if err := s.RecordSyncFailure(ctx, parked, "remote rejected: 422", true); err != nil {
		t.Fatal(err)
	}

	pending, err := s.PendingSyncOperations(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != other {
		t.Fatalf("pending = %+v, want only op %d", pending, other)
	}

	if _, err := s.RequeueDeadLetters(ctx); err != nil {
		t.Fatal(err)
	}
	pending, _ = s.PendingSyncOperations(ctx, 0)
	if len(pending) != 3 || pending[0].ID != parked || pending[1].ID != later {
		t.Errorf("after requeue pending = %+v", pending)
	}
}

func TestSyncQueue_PurgeCompleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	done := enqueue(t, s, stocksync.OperationAdd, "products", "p1")
	enqueue(t, s, stocksync.OperationAdd, "products", "p2")
	if err := s.MarkSyncCompleted(ctx, done); err != nil {
		t.Fatal(err)
	}

	n, err := s.PurgeCompletedSync(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("PurgeCompletedSync = %d, want 1", n)
	}

	stats, _ := s.SyncQueueStats(ctx)
	if stats.Completed != 0 || stats.Pending != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSyncQueue_EnqueueInsideRolledBackTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.ExecuteTransaction(ctx, func(tx *Tx) error {
		if _, err := tx.EnqueueSync(ctx, stocksync.PendingOperation{
			Operation: stocksync.OperationAdd, Collection: "products", DocumentID: "p1",
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})

	stats, err := s.SyncQueueStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 0 {
		t.Errorf("pending = %d after rollback, want 0", stats.Pending)
	}
}

// --- Backup ---

func TestBackup_WritesOpenableCopy(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "live.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.UpsertProduct(ctx, sampleProduct(t, "p1", "Flour")); err != nil {
		t.Fatal(err)
	}

	path, err := s.Backup(ctx, filepath.Join(t.TempDir(), "backups"))
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	copyStore, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer copyStore.Close()

	if _, err := copyStore.GetProduct(ctx, "p1"); err != nil {
		t.Errorf("backup missing product: %v", err)
	}
}
