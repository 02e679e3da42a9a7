// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package aggregation rolls raw events and sessions into hourly, daily and
// real-time snapshots and serves them cache-aside.
//
// Each Generate* call recomputes a snapshot from the event store and writes
// it to the cache. Each Get* call tries the cache first and falls back to the
// matching Generate*. A store failure aborts the computation and nothing is
// cached. A cache failure is logged and never fails the call.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/isaacson-f/personal-website-sub000/internal/cache"
	"github.com/isaacson-f/personal-website-sub000/internal/store"
)

// ErrInvalidRange is returned when a range starts after it ends.
var ErrInvalidRange = errors.New("invalid range: start is after end")

// Options configures an Engine.
type Options struct {
	// Location sets hour and day boundaries. Default: time.Local.
	Location *time.Location
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// Registerer receives the engine metrics. Nil keeps them in a private registry.
	Registerer prometheus.Registerer
}

// Engine computes and caches analytics snapshots.
type Engine struct {
	db     store.Querier
	cache  cache.Cache
	hourly *cache.TypedCache[HourlySnapshot]
	daily  *cache.TypedCache[DailySnapshot]
	live   *cache.TypedCache[RealtimeMetrics]

	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
	metrics *engineMetrics
}

// NewEngine creates an Engine reading from db and caching in c.
func NewEngine(db store.Querier, c cache.Cache, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}

	return &Engine{
		db:      db,
		cache:   c,
		hourly:  cache.NewTypedCache[HourlySnapshot](c, HourlyTTL),
		daily:   cache.NewTypedCache[DailySnapshot](c, DailyTTL),
		live:    cache.NewTypedCache[RealtimeMetrics](c, RealtimeTTL),
		loc:     opts.Location,
		logger:  opts.Logger,
		now:     opts.Now,
		metrics: newEngineMetrics(opts.Registerer),
	}
}

// Location returns the location hour and day windows are computed in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// StartOfHour truncates t to the start of its hour in the engine location.
// The sub-hour part is subtracted in place so the repeated hour of a DST
// fall-back keeps its own offset.
func (e *Engine) StartOfHour(t time.Time) time.Time {
	t = t.In(e.loc)
	return t.Add(-(time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())))
}

// StartOfDay truncates t to local midnight in the engine location.
func (e *Engine) StartOfDay(t time.Time) time.Time {
	t = t.In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

// lookupSnapshot is the first half of cache-aside. Read errors other than a miss are
// logged and reported as a miss.
func lookupSnapshot[T any](ctx context.Context, e *Engine, tc *cache.TypedCache[T], kind, key string) (*T, bool) {
	v, ok, err := tc.TryGet(ctx, key)
	switch {
	case err != nil:
		e.metrics.cacheLookups.WithLabelValues(kind, "error").Inc()
		e.logger.Warn("cache read failed, recomputing", "kind", kind, "key", key, "error", err)
		return nil, false
	case ok:
		e.metrics.cacheLookups.WithLabelValues(kind, "hit").Inc()
		return v, true
	default:
		e.metrics.cacheLookups.WithLabelValues(kind, "miss").Inc()
		return nil, false
	}
}

// storeSnapshot is the second half of cache-aside. A failed write is logged only.
func storeSnapshot[T any](ctx context.Context, e *Engine, tc *cache.TypedCache[T], kind, key string, v *T, ttl time.Duration) {
	if err := tc.Store(ctx, key, v, ttl); err != nil {
		e.metrics.cacheFailures.WithLabelValues(kind).Inc()
		e.logger.Warn("cache write failed", "kind", kind, "key", key, "error", err)
	}
}

// observe records the duration of a computation and counts failures.
func (e *Engine) observe(kind string, started time.Time, err error) {
	e.metrics.duration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
	if err != nil {
		e.metrics.failures.WithLabelValues(kind).Inc()
	}
}

func fmtErr(what string, err error) error {
	return fmt.Errorf("%s: %w", what, err)
}
