// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler serves the tracking beacon endpoint, the analytics query
// API and the admin endpoints that drive the scheduler.
package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/isaacson-f/personal-website-sub000/internal/aggregation"
	"github.com/isaacson-f/personal-website-sub000/internal/ingest"
	"github.com/isaacson-f/personal-website-sub000/internal/scheduler"
)

// Analytics computes and serves snapshots.
type Analytics interface {
	GenerateHourlyAggregation(ctx context.Context, t time.Time) (*aggregation.HourlySnapshot, error)
	GetHourlyAggregation(ctx context.Context, t time.Time) (*aggregation.HourlySnapshot, error)
	GenerateDailyAggregation(ctx context.Context, t time.Time) (*aggregation.DailySnapshot, error)
	GetDailyAggregation(ctx context.Context, t time.Time) (*aggregation.DailySnapshot, error)
	GenerateRealtimeMetrics(ctx context.Context) (*aggregation.RealtimeMetrics, error)
	GetRealtimeMetrics(ctx context.Context) (*aggregation.RealtimeMetrics, error)
	GenerateSummaryStats(ctx context.Context, from, to time.Time, filters aggregation.SummaryFilters) (*aggregation.Summary, error)
	Location() *time.Location
}

// Tracker records beacons.
type Tracker interface {
	Track(ctx context.Context, b ingest.Beacon, c ingest.Client) (ingest.Result, error)
	PageViewsToday(ctx context.Context) (int64, error)
}

// Jobs is the manual side of the scheduler.
type Jobs interface {
	TriggerHourlyAggregation(ctx context.Context, t time.Time) error
	TriggerDailyAggregation(ctx context.Context, t time.Time) error
	BackfillAggregations(ctx context.Context, start, end time.Time, g scheduler.Granularity) (int, error)
	Status() scheduler.Status
}

// Handler holds the dependencies of the API handlers.
type Handler struct {
	analytics Analytics
	tracker   Tracker
	jobs      Jobs
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Handler. A nil logger uses slog.Default().
func New(a Analytics, t Tracker, j Jobs, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		analytics: a,
		tracker:   t,
		jobs:      j,
		logger:    logger,
		now:       time.Now,
	}
}
