// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/isaacson-f/personal-website-sub000/internal/middleware"
)

// Route paths.
const (
	RouteTrack     = "/api/track"
	RouteHourly    = "/api/analytics/hourly"
	RouteDaily     = "/api/analytics/daily"
	RouteRealtime  = "/api/analytics/realtime"
	RouteSummary   = "/api/analytics/summary"
	RouteAggregate = "/api/admin/aggregate"
	RouteBackfill  = "/api/admin/backfill"
	RouteScheduler = "/api/admin/scheduler"
)

// RouterConfig wires the handlers into a router.
type RouterConfig struct {
	API            *Handler
	Health         *HealthHandler
	Metrics        http.Handler // Served on /metrics when set
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestLogger(&chimw.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	r.Use(chimw.Recoverer)

	r.Get("/health", cfg.Health.Health)
	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	h := cfg.API
	r.Group(func(r chi.Router) {
		r.Use(middleware.CORS(cfg.AllowedOrigins))

		track := http.Handler(http.HandlerFunc(h.Track))
		if cfg.RateLimiter != nil {
			track = cfg.RateLimiter.Middleware(track)
		}
		r.Method(http.MethodPost, RouteTrack, track)
		r.Options(RouteTrack, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get(RouteHourly, h.Hourly)
		r.Get(RouteDaily, h.Daily)
		r.Get(RouteRealtime, h.Realtime)
		r.Get(RouteSummary, h.Summary)
	})

	r.Post(RouteAggregate, h.Aggregate)
	r.Post(RouteBackfill, h.Backfill)
	r.Get(RouteScheduler, h.SchedulerStatus)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}
