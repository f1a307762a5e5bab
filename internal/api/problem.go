package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/stockroom/internal/engine"
	"github.com/hyperengineering/stockroom/internal/inventory"
	"github.com/hyperengineering/stockroom/internal/store"
	"github.com/hyperengineering/stockroom/internal/validation"
	"github.com/hyperengineering/stockroom/internal/worker"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

type problemType struct {
	typeURI string
	title   string
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]problemType{
	http.StatusBadRequest:          {"https://stockroom.dev/errors/bad-request", "Bad Request"},
	http.StatusUnauthorized:        {"https://stockroom.dev/errors/unauthorized", "Unauthorized"},
	http.StatusNotFound:            {"https://stockroom.dev/errors/not-found", "Not Found"},
	http.StatusMethodNotAllowed:    {"https://stockroom.dev/errors/not-allowed", "Method Not Allowed"},
	http.StatusConflict:            {"https://stockroom.dev/errors/conflict", "Conflict"},
	http.StatusUnprocessableEntity: {"https://stockroom.dev/errors/validation-error", "Validation Error"},
	http.StatusInternalServerError: {"https://stockroom.dev/errors/internal-error", "Internal Server Error"},
	http.StatusServiceUnavailable:  {"https://stockroom.dev/errors/service-unavailable", "Service Unavailable"},
}

func lookupProblemType(status int) problemType {
	if pt, ok := problemTypes[status]; ok {
		return pt
	}
	return problemType{typeURI: "https://stockroom.dev/errors/unknown", title: http.StatusText(status)}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt := lookupProblemType(status)
	writeProblemBody(w, status, Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.FieldError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.FieldError) {
	pt := lookupProblemType(http.StatusUnprocessableEntity)
	writeProblemBody(w, http.StatusUnprocessableEntity, ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	})
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "component", "api", "error", err)
	}
}

// MapError converts engine errors to Problem Details responses.
func MapError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteProblemWithErrors(w, r, "Request contains invalid fields", verr.Fields)
	case errors.Is(err, inventory.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, engine.ErrUnknownKind):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, inventory.ErrInsufficientQuantity):
		WriteProblem(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, inventory.ErrGroupInUse), errors.Is(err, inventory.ErrDefaultGroup):
		WriteProblem(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, worker.ErrDrainInProgress):
		WriteProblem(w, r, http.StatusConflict, "Sync already in progress")
	case errors.Is(err, engine.ErrUnsupported):
		WriteProblem(w, r, http.StatusMethodNotAllowed, err.Error())
	default:
		slog.Error("request failed",
			"component", "api",
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
