package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/stockroom/internal/engine"
	"github.com/hyperengineering/stockroom/internal/metrics"
	"github.com/hyperengineering/stockroom/internal/store"
	"github.com/hyperengineering/stockroom/internal/types"
	"github.com/hyperengineering/stockroom/internal/worker"
)

// testNow is a Monday.
var testNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func newTestAPI(t *testing.T, apiKey string) (*engine.Engine, http.Handler) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	e, err := engine.New(context.Background(), s, engine.Options{
		BackupDir: t.TempDir(),
		Now:       func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return e, NewRouter(NewHandler(e, apiKey, "test"), metrics.NewRegistry(e))
}

func decodeBody[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return v
}

func TestHealth(t *testing.T) {
	_, h := newTestAPI(t, testAPIKey)

	w := doRequest(h, http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeBody[HealthResponse](t, w.Body.Bytes())
	if resp.Status != "healthy" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
	if resp.Online {
		t.Error("Online = true with no remote configured")
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	_, h := newTestAPI(t, testAPIKey)

	for _, path := range []string{"/api/v1/status", "/api/v1/products", "/api/v1/products/low-stock"} {
		w := doRequest(h, http.MethodGet, path, "", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, w.Code)
		}
	}
}

func TestProductLifecycle(t *testing.T) {
	_, h := newTestAPI(t, "")

	w := doRequest(h, http.MethodPost, "/api/v1/products",
		`{"name":"Leite","quantity":4,"expiry_date":"2026-10-29"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	created := decodeBody[types.Product](t, w.Body.Bytes())
	if created.ID == "" || created.Quantity != 4 {
		t.Fatalf("created = %+v", created)
	}

	w = doRequest(h, http.MethodGet, "/api/v1/products", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if got := decodeBody[[]types.Product](t, w.Body.Bytes()); len(got) != 1 {
		t.Errorf("listed %d products, want 1", len(got))
	}

	w = doRequest(h, http.MethodPut, "/api/v1/products/"+created.ID, `{"quantity":12}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", w.Code, w.Body.String())
	}
	if got := decodeBody[types.Product](t, w.Body.Bytes()); got.Quantity != 12 {
		t.Errorf("updated quantity = %d, want 12", got.Quantity)
	}

	w = doRequest(h, http.MethodPost, "/api/v1/products/"+created.ID+"/exits",
		`{"quantity":2,"exit_type":"venda"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("exit status = %d, body %s", w.Code, w.Body.String())
	}
	if got := decodeBody[types.Product](t, w.Body.Bytes()); got.Quantity != 10 {
		t.Errorf("quantity after exit = %d, want 10", got.Quantity)
	}

	w = doRequest(h, http.MethodPost, "/api/v1/products/"+created.ID+"/exits",
		`{"quantity":50,"exit_type":"venda"}`, "")
	if w.Code != http.StatusConflict {
		t.Errorf("oversized exit status = %d, want 409", w.Code)
	}

	w = doRequest(h, http.MethodGet, "/api/v1/history", "", "")
	if got := decodeBody[[]types.HistoryEntry](t, w.Body.Bytes()); len(got) != 1 {
		t.Errorf("history = %d entries, want 1", len(got))
	}

	w = doRequest(h, http.MethodDelete, "/api/v1/products/"+created.ID, "", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, body %s", w.Code, w.Body.String())
	}
	w = doRequest(h, http.MethodDelete, "/api/v1/products/"+created.ID, "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	_, h := newTestAPI(t, "")

	w := doRequest(h, http.MethodPost, "/api/v1/products", `{"name":"","quantity":0,"expiry_date":"soon"}`, "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	p := decodeBody[ProblemWithErrors](t, w.Body.Bytes())
	fields := map[string]bool{}
	for _, e := range p.Errors {
		fields[e.Field] = true
	}
	for _, f := range []string{"name", "quantity", "expiry_date"} {
		if !fields[f] {
			t.Errorf("missing field error for %q in %+v", f, p.Errors)
		}
	}

	w = doRequest(h, http.MethodPost, "/api/v1/residues", `{"kind":"organic","weight":"heavy"}`, "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("type mismatch status = %d, want 422", w.Code)
	}
	p = decodeBody[ProblemWithErrors](t, w.Body.Bytes())
	if len(p.Errors) == 0 || p.Errors[0].Field != "weight" {
		t.Errorf("errors = %+v, want weight", p.Errors)
	}
}

func TestKindRouting(t *testing.T) {
	_, h := newTestAPI(t, "")

	if w := doRequest(h, http.MethodGet, "/api/v1/pallets", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown kind status = %d, want 404", w.Code)
	}
	if w := doRequest(h, http.MethodPost, "/api/v1/history", `{}`, ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST history status = %d, want 405", w.Code)
	}
	if w := doRequest(h, http.MethodDelete, "/api/v1/groups/other", "", ""); w.Code != http.StatusConflict {
		t.Errorf("delete default group status = %d, want 409", w.Code)
	}

	w := doRequest(h, http.MethodGet, "/api/v1/settings", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("settings status = %d", w.Code)
	}
	if got := decodeBody[types.Settings](t, w.Body.Bytes()); got.LowStockThreshold != types.DefaultSettings().LowStockThreshold {
		t.Errorf("settings = %+v", got)
	}

	w = doRequest(h, http.MethodPut, "/api/v1/settings/app", `{"expiry_warning_days":0}`, "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid settings status = %d, want 422", w.Code)
	}
}

func TestDerivedProductLists(t *testing.T) {
	_, h := newTestAPI(t, "")

	doRequest(h, http.MethodPost, "/api/v1/products", `{"name":"Iogurte","quantity":2,"expiry_date":"2026-10-22"}`, "")
	doRequest(h, http.MethodPost, "/api/v1/products", `{"name":"Arroz","quantity":40,"expiry_date":"2027-10-22"}`, "")

	w := doRequest(h, http.MethodGet, "/api/v1/products/low-stock", "", "")
	if got := decodeBody[[]types.Product](t, w.Body.Bytes()); len(got) != 1 || got[0].Name != "Iogurte" {
		t.Errorf("low-stock = %+v", got)
	}
	w = doRequest(h, http.MethodGet, "/api/v1/products/low-stock?threshold=50", "", "")
	if got := decodeBody[[]types.Product](t, w.Body.Bytes()); len(got) != 2 {
		t.Errorf("low-stock?threshold=50 = %d products, want 2", len(got))
	}

	w = doRequest(h, http.MethodGet, "/api/v1/products/expiring", "", "")
	if got := decodeBody[[]types.Product](t, w.Body.Bytes()); len(got) != 1 {
		t.Errorf("expiring = %d products, want 1", len(got))
	}
	w = doRequest(h, http.MethodGet, "/api/v1/products/expiring?days=1", "", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expiring?days=1 = %s, want []", w.Body.String())
	}
	w = doRequest(h, http.MethodGet, "/api/v1/products/expiring?days=abc", "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad days status = %d, want 400", w.Code)
	}
}

func TestSyncAndStatus(t *testing.T) {
	_, h := newTestAPI(t, "")

	doRequest(h, http.MethodPost, "/api/v1/groups", `{"name":"Dairy","keywords":["leite"]}`, "")

	w := doRequest(h, http.MethodPost, "/api/v1/sync", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d", w.Code)
	}
	if got := decodeBody[worker.DrainResult](t, w.Body.Bytes()); !got.Deferred {
		t.Errorf("drain = %+v, want deferred without a remote", got)
	}

	w = doRequest(h, http.MethodGet, "/api/v1/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	st := decodeBody[engine.Status](t, w.Body.Bytes())
	if st.Online {
		t.Error("Online = true without remote")
	}
	if st.Queue.Pending != 1 {
		t.Errorf("pending = %d, want 1", st.Queue.Pending)
	}

	w = doRequest(h, http.MethodPost, "/api/v1/refresh", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("refresh status = %d", w.Code)
	}
}

func TestDeadLetterRoutes(t *testing.T) {
	_, h := newTestAPI(t, "")

	w := doRequest(h, http.MethodGet, "/api/v1/queue/dead-letters", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("dead-letters status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("dead-letters body = %s, want []", got)
	}

	w = doRequest(h, http.MethodPost, "/api/v1/queue/requeue", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("requeue status = %d", w.Code)
	}
	if got := decodeBody[map[string]int64](t, w.Body.Bytes()); got["requeued"] != 0 {
		t.Errorf("requeued = %d, want 0", got["requeued"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestAPI(t, "")

	w := doRequest(h, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{metrics.RemoteOnlineKey, metrics.SyncQueuePendingKey, metrics.SyncQueueDeadLetterKey} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
