package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/storefront/internal/auth"
	"github.com/odyssey-erp/storefront/internal/catalog"
	"github.com/odyssey-erp/storefront/internal/importer"
	"github.com/odyssey-erp/storefront/internal/observability"
	"github.com/odyssey-erp/storefront/internal/orders"
	"github.com/odyssey-erp/storefront/internal/platform/httpx"
	"github.com/odyssey-erp/storefront/jobs"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	AuthHandler    *auth.Handler
	CatalogHandler *catalog.Handler
	OrdersHandler  *orders.Handler
	ImportHandler  *importer.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	// Checks run on /readyz, keyed by dependency name.
	Checks map[string]HealthCheck
}

// NewRouter constructs the chi.Router with storefront defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Logger, params.Checks))
	r.Handle("/metrics", params.Metrics.Handler())

	requestTimeout, importTimeout := 30*time.Second, 30*time.Minute
	if params.Config != nil {
		if params.Config.AppRequestTimeout > 0 {
			requestTimeout = params.Config.AppRequestTimeout
		}
		if params.Config.ImportTimeout > 0 {
			importTimeout = params.Config.ImportTimeout
		}
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))
			if params.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.Use(LoginRateLimit())
					params.AuthHandler.MountRoutes(r)
				})
			}
			if params.CatalogHandler != nil {
				params.CatalogHandler.MountRoutes(r)
			}
			if params.OrdersHandler != nil {
				r.Route("/orders", params.OrdersHandler.MountRoutes)
			}
			if params.JobHandler != nil && params.AuthHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Use(params.AuthHandler.RequireToken)
					params.JobHandler.MountRoutes(r)
				})
			}
		})
		if params.ImportHandler != nil && params.AuthHandler != nil {
			r.Route("/import", func(r chi.Router) {
				r.Use(chimw.Timeout(importTimeout))
				r.Use(params.AuthHandler.RequireToken)
				params.ImportHandler.MountRoutes(r)
			})
		}
	})

	return r
}

func readiness(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("dependency", name), slog.Any("error", err))
				out[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "up"
		}
		httpx.JSON(w, status, out)
	}
}
