package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iconidentify/mediagrab/internal/api/handler"
	mw "github.com/iconidentify/mediagrab/internal/api/middleware"
)

// RouterConfig holds router settings.
type RouterConfig struct {
	APIKey string
	// RateLimit is requests per minute per client IP on /api/v1. Zero disables it.
	RateLimit int
	// RequestTimeout bounds a request, including a blocking redeem.
	RequestTimeout time.Duration
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	mediaHandler *handler.MediaHandler,
	jobsHandler *handler.JobsHandler,
	healthHandler *handler.HealthHandler,
	cfg RouterConfig,
	logger *slog.Logger,
) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(mw.CORS)

	// Health and metrics (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(mw.RateLimit(mw.RateLimitConfig{
				RequestLimit: cfg.RateLimit,
				WindowSize:   time.Minute,
			}))
		}
		r.Use(mw.APIKeyAuth(cfg.APIKey))

		r.Get("/stats", healthHandler.Stats)

		r.Post("/resolve", mediaHandler.Resolve)
		r.Post("/redeem", mediaHandler.Redeem)
		r.Get("/files/{name}", mediaHandler.ServeFile)
		r.Delete("/files/{name}", mediaHandler.DeleteFile)

		r.Get("/jobs", jobsHandler.List)
		r.Get("/jobs/{jobID}", jobsHandler.Get)
	})

	return r
}
