package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/securedrop/internal/apiv1"
	"github.com/dmitrijs2005/securedrop/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts every endpoint. proxy may be nil when the blob store
// issues its own capabilities.
func NewRouter(h *Handler, proxy http.Handler, log logging.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(Metrics())
	r.Use(RequestLogger(log))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, apiv1.CodeNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, apiv1.CodeValidationError, "method not allowed")
	})

	r.Route("/api/v1/files", func(r chi.Router) {
		r.Post("/", h.Upload)
		r.Get("/{id}", h.Retrieve)
		r.Post("/{id}/consume", h.Consume)
		r.Delete("/{id}", h.Delete)
	})

	if proxy != nil {
		r.Method(http.MethodGet, "/blobs/{token}", proxy)
	}

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
