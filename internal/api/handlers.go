package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/stockroom/internal/engine"
	"github.com/hyperengineering/stockroom/internal/inventory"
	"github.com/hyperengineering/stockroom/internal/types"
)

// maxBodyBytes bounds request payloads.
const maxBodyBytes = 1 << 20

// Handler implements the local API handlers
type Handler struct {
	engine  *engine.Engine
	apiKey  string
	version string
}

// NewHandler creates a new Handler over the engine. An empty apiKey
// disables authentication.
func NewHandler(e *engine.Engine, apiKey, version string) *Handler {
	return &Handler{engine: e, apiKey: apiKey, version: version}
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Online  bool   `json:"online"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Request body too large or unreadable")
		return nil, false
	}
	return body, true
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Online:  h.engine.ConnectionStatus(),
	})
}

// Status handles GET /api/v1/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Sync handles POST /api/v1/sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.SyncNow(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeadLetters handles GET /api/v1/queue/dead-letters
func (h *Handler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	ops, err := h.engine.DeadLetters(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ops))
}

// Requeue handles POST /api/v1/queue/requeue
func (h *Handler) Requeue(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.RequeueDeadLetters(r.Context())
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"requeued": n})
}

// Refresh handles POST /api/v1/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Refresh(r.Context()); err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]time.Time{
		"refreshed_at": h.engine.Snapshot().RefreshedAt,
	})
}

// List handles GET /api/v1/{kind}
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	kind, _ := KindFromContext(r.Context())
	v, err := h.engine.ListCached(kind)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Create handles POST /api/v1/{kind}
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	kind, _ := KindFromContext(r.Context())
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	entity, err := h.engine.AddEntity(r.Context(), kind, body)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entity)
}

// Update handles PUT /api/v1/{kind}/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	kind, _ := KindFromContext(r.Context())
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	entity, err := h.engine.UpdateEntity(r.Context(), kind, chi.URLParam(r, "id"), body)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// Delete handles DELETE /api/v1/{kind}/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, _ := KindFromContext(r.Context())
	if err := h.engine.DeleteEntity(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterExit handles POST /api/v1/products/{id}/exits
func (h *Handler) RegisterExit(w http.ResponseWriter, r *http.Request) {
	var in inventory.ExitInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON")
		return
	}
	p, err := h.engine.RegisterExit(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// queryInt parses an optional integer query parameter. ok is false after a
// problem response was written.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (value int, present, ok bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		WriteProblem(w, r, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, true, false
	}
	return n, true, true
}

// LowStock handles GET /api/v1/products/low-stock?threshold=
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold, _, ok := queryInt(w, r, "threshold")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.engine.LowStock(threshold)))
}

// Expiring handles GET /api/v1/products/expiring?days=
// Without days the configured warning window applies.
func (h *Handler) Expiring(w http.ResponseWriter, r *http.Request) {
	days, present, ok := queryInt(w, r, "days")
	if !ok {
		return
	}
	var products []types.Product
	if present {
		products = h.engine.ExpiringWithin(days)
	} else {
		products = h.engine.Snapshot().Expiring
	}
	writeJSON(w, http.StatusOK, nonNil(products))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
