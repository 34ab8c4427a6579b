package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"celebrate/pkg/platform/httputil"
	"celebrate/pkg/platform/middleware/admin"
	authmw "celebrate/pkg/platform/middleware/auth"
	"celebrate/pkg/platform/middleware/metadata"
	"celebrate/pkg/platform/middleware/ratelimit"
	"celebrate/pkg/platform/middleware/request"
	"celebrate/pkg/platform/middleware/requesttime"
)

const requestTimeout = 30 * time.Second

// Router mounts every route group. Donor routes need a bearer token,
// operator routes the admin token, and webhooks a provider signature.
func (a *App) Router() http.Handler {
	logger := a.Logger
	cfg := a.Config.Server

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(logger))
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	if a.httpMetrics != nil {
		r.Use(a.httpMetrics.Middleware)
	}

	r.Get("/healthz", a.handleHealth)
	if a.httpMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	limiter := ratelimit.New(cfg.RatePerSecond, cfg.RateBurst, logger)
	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		r.Use(authmw.RequireAuth(a.Tokens, logger))
		a.celebrationHandler.Register(r)
		a.profileHandler.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.AdminToken, logger))
		a.celebrationHandler.RegisterInternal(r)
		a.resolutionHandler.Register(r)
	})

	r.Group(func(r chi.Router) {
		a.celebrationHandler.RegisterWebhooks(r)
	})
	return r
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.Health(r.Context()); err != nil {
		a.Logger.WarnContext(r.Context(), "health check failed", "error", err)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
