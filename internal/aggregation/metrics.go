// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package aggregation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Aggregation kinds used as metric labels.
const (
	kindHourly   = "hourly"
	kindDaily    = "daily"
	kindRealtime = "realtime"
	kindSummary  = "summary"
)

type engineMetrics struct {
	duration      *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	cacheFailures *prometheus.CounterVec
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	factory := promauto.With(reg)
	return &engineMetrics{
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analytics_aggregation_duration_seconds",
			Help:    "Time spent computing an aggregation from the event store",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_aggregation_failures_total",
			Help: "Aggregations aborted by an event store error",
		}, []string{"kind"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_cache_lookups_total",
			Help: "Cache-aside lookups by result (hit, miss, error)",
		}, []string{"kind", "result"}),
		cacheFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_cache_write_failures_total",
			Help: "Snapshots computed but not written to the cache",
		}, []string{"kind"}),
	}
}
