// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Command analytics runs the web analytics service: beacon ingestion, the
// query API and the background aggregation scheduler.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/isaacson-f/personal-website-sub000/internal/aggregation"
	"github.com/isaacson-f/personal-website-sub000/internal/cache"
	"github.com/isaacson-f/personal-website-sub000/internal/config"
	"github.com/isaacson-f/personal-website-sub000/internal/geoip"
	"github.com/isaacson-f/personal-website-sub000/internal/handler"
	"github.com/isaacson-f/personal-website-sub000/internal/ingest"
	"github.com/isaacson-f/personal-website-sub000/internal/logging"
	"github.com/isaacson-f/personal-website-sub000/internal/middleware"
	"github.com/isaacson-f/personal-website-sub000/internal/scheduler"
	"github.com/isaacson-f/personal-website-sub000/internal/store"
	"github.com/isaacson-f/personal-website-sub000/internal/version"
)

// Build information, injected via ldflags.
var (
	appVersion   = ""
	appGitCommit = ""
	appBuildTime = ""
)

func main() {
	// Parse CLI flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "analytics - web analytics ingestion and aggregation service\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  ANALYTICS_DB_DRIVER          sqlite|postgres (default: sqlite)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  ANALYTICS_DB_PATH            SQLite database path (default: ./data/analytics.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  ANALYTICS_DB_URL             PostgreSQL connection URL\n")
		_, _ = fmt.Fprintf(os.Stderr, "  ANALYTICS_REDIS_URL          Redis URL for the snapshot cache (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  ANALYTICS_TIMEZONE           Zone for hour and day windows (default: Local)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  ANALYTICS_SERVER_PORT        Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  ANALYTICS_GEOIP_DB_PATH      GeoLite2-Country.mmdb path (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  ANALYTICS_ALLOWED_ORIGINS    Comma-separated beacon origins (default: *)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	info := version.Info{Version: appVersion, GitCommit: appGitCommit, BuildTime: appBuildTime}
	if *showVersion {
		_, _ = fmt.Printf("analytics %s\n", info)
		os.Exit(0)
	}

	if err := run(info); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(info version.Info) error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	logger := logging.New(os.Stdout, cfg.LogLevel, reg)
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}

	db, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database connection", "error", err)
		}
	}()

	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisURL = cfg.RedisURL
	cacheCfg.Prefix = cfg.CachePrefix
	cacheCfg.MaxSize = cfg.CacheMaxSize
	snapshotCache, backend := cache.New(cacheCfg, logger)
	defer func() {
		if err := snapshotCache.Close(); err != nil {
			logger.Error("error closing cache", "error", err)
		}
	}()

	geo, err := geoip.NewLookup(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn("geoip disabled", "path", cfg.GeoIPDBPath, "error", err)
	}
	defer func() { _ = geo.Close() }()

	salt := cfg.VisitorSalt
	if salt == "" {
		salt = randomSalt()
		logger.Warn("ANALYTICS_VISITOR_SALT not set, visitor fingerprints change on restart")
	}

	engine := aggregation.NewEngine(db, snapshotCache, aggregation.Options{
		Location:   loc,
		Logger:     logger,
		Registerer: reg,
	})
	tracker := ingest.NewTracker(db, snapshotCache, geo, ingest.Options{
		Salt:     salt,
		Location: loc,
		Logger:   logger,
	})
	sched := scheduler.New(engine, scheduler.Options{
		Logger:        logger,
		JobTimeout:    cfg.JobTimeout,
		IdleTimeout:   cfg.SessionIdleTimeout,
		RetentionDays: cfg.RetentionDays,
		Registerer:    reg,
	})

	if cfg.SchedulerEnabled {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	} else {
		logger.Info("scheduler disabled")
	}

	router := handler.NewRouter(handler.RouterConfig{
		API:            handler.New(engine, tracker, sched, logger),
		Health:         handler.NewHealthHandler(db, snapshotCache, backend, info),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		RateLimiter:    middleware.NewRateLimiter(cfg.TrackRateLimit, cfg.TrackBurst, ingest.RealIP, logger),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second, // Reduced from 120s to mitigate slowloris attacks
		MaxHeaderBytes:    1 << 20,          // 1MB max header size
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env,
			"version", info.String(), "cache", backend, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// SIGHUP reloads the GeoIP database after an update.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

wait:
	for {
		select {
		case err := <-serverErr:
			sched.Stop()
			return fmt.Errorf("server error: %w", err)
		case s := <-sig:
			if s != syscall.SIGHUP {
				break wait
			}
			if err := geo.Reload(); err != nil {
				logger.Warn("reloading geoip database failed", "error", err)
			} else {
				logger.Info("geoip database reloaded", "enabled", geo.IsEnabled())
			}
		}
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore connects to the configured event store and applies migrations.
func openStore(cfg *config.Config, logger *slog.Logger) (*store.DB, error) {
	dsn := cfg.DBURL
	if cfg.DBDriver == config.DriverSQLite {
		dsn = cfg.DBPath
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		logger.Info("initializing database", "driver", cfg.DBDriver, "path", cfg.DBPath)
	} else {
		logger.Info("initializing database", "driver", cfg.DBDriver)
	}

	db, err := store.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func randomSalt() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
