package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/stockroom/internal/types"
)

// kindContextKey is the context key for the resolved entity kind.
type kindContextKey struct{}

// WithKind returns a new context with the entity kind attached.
func WithKind(ctx context.Context, k types.Kind) context.Context {
	return context.WithValue(ctx, kindContextKey{}, k)
}

// KindFromContext extracts the entity kind from the context.
func KindFromContext(ctx context.Context) (types.Kind, bool) {
	k, ok := ctx.Value(kindContextKey{}).(types.Kind)
	return k, ok && k != ""
}

// KindMiddleware resolves the {kind} URL parameter. Unknown kinds get a 404
// before any handler runs.
func KindMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, err := types.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			WriteProblem(w, r, http.StatusNotFound, "Unknown collection")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithKind(r.Context(), kind)))
	})
}
