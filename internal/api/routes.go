package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the local API router. A nil registry leaves /metrics
// unmounted.
func NewRouter(h *Handler, registry *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Get("/status", h.Status)
			r.Post("/sync", h.Sync)
			r.Post("/refresh", h.Refresh)
			r.Get("/queue/dead-letters", h.DeadLetters)
			r.Post("/queue/requeue", h.Requeue)

			r.Get("/products/low-stock", h.LowStock)
			r.Get("/products/expiring", h.Expiring)
			r.Post("/products/{id}/exits", h.RegisterExit)

			r.Route("/{kind}", func(r chi.Router) {
				r.Use(KindMiddleware)
				r.Get("/", h.List)
				r.Post("/", h.Create)
				r.Put("/{id}", h.Update)
				r.Delete("/{id}", h.Delete)
			})
		})
	})

	return r
}

// NewMirrorRouter creates the reference mirror server router.
func NewMirrorRouter(h *MirrorHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Route("/collections/{collection}/documents", func(r chi.Router) {
				r.Get("/", h.ListDocuments)
				r.Get("/{id}", h.GetDocument)
				r.Put("/{id}", h.PutDocument)
				r.Delete("/{id}", h.DeleteDocument)
			})
		})
	})

	return r
}
