// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type jobMetrics struct {
	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func newJobMetrics(reg prometheus.Registerer) *jobMetrics {
	factory := promauto.With(reg)
	return &jobMetrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_scheduler_job_runs_total",
			Help: "Scheduled job ticks by job and result (ok, error)",
		}, []string{"job", "result"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "analytics_scheduler_last_success_timestamp_seconds",
			Help: "Unix time of the last successful tick per job",
		}, []string{"job"}),
	}
}
