package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/stockroom/internal/mirror"
)

// MirrorHandler serves the remote mirror document protocol over an
// in-memory document store.
type MirrorHandler struct {
	docs    *mirror.Documents
	apiKey  string
	version string
}

// NewMirrorHandler creates a mirror handler. An empty apiKey disables
// authentication.
func NewMirrorHandler(docs *mirror.Documents, apiKey, version string) *MirrorHandler {
	return &MirrorHandler{docs: docs, apiKey: apiKey, version: version}
}

// Health handles GET /api/v1/health
func (h *MirrorHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

// PutDocument handles PUT /api/v1/collections/{collection}/documents/{id}
func (h *MirrorHandler) PutDocument(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Request body too large or unreadable")
		return
	}
	if !json.Valid(body) {
		WriteProblem(w, r, http.StatusBadRequest, "Document must be valid JSON")
		return
	}

	h.docs.Set(collection, id, body)
	slog.Debug("document stored",
		"component", "mirror",
		"collection", collection,
		"document_id", id,
	)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteDocument handles DELETE /api/v1/collections/{collection}/documents/{id}.
// Deleting a missing document succeeds.
func (h *MirrorHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	existed := h.docs.Delete(collection, id)
	slog.Debug("document deleted",
		"component", "mirror",
		"collection", collection,
		"document_id", id,
		"existed", existed,
	)
	w.WriteHeader(http.StatusNoContent)
}

// GetDocument handles GET /api/v1/collections/{collection}/documents/{id}
func (h *MirrorHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.docs.Get(chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if !ok {
		WriteProblem(w, r, http.StatusNotFound, "Document not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(doc)
}

// ListDocuments handles GET /api/v1/collections/{collection}/documents
func (h *MirrorHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.docs.List(chi.URLParam(r, "collection")))
}
