package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veritrail/pkg/platform/middleware/auth"
)

// NewRouter wires the audit API. The tenant routes sit behind bearer auth;
// health and metrics stay open for the platform.
func NewRouter(h *AuditHandler, validator auth.JWTValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if validator != nil {
			r.Use(auth.RequireAuth(validator, logger))
		}
		h.Register(r)
	})

	return r
}
