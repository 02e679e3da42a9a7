// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package aggregation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// GenerateHourlyAggregation computes the snapshot of the hour containing t
// and caches it for HourlyTTL.
func (e *Engine) GenerateHourlyAggregation(ctx context.Context, t time.Time) (*HourlySnapshot, error) {
	start := e.StartOfHour(t)
	key := HourlyKey(start)

	snap, err := e.computeHourly(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("hourly aggregation %s: %w", key, err)
	}

	storeSnapshot(ctx, e, e.hourly, kindHourly, key, snap, HourlyTTL)
	e.logger.Debug("hourly aggregation complete", "hour", start.Format("2006-01-02 15:00"),
		"events", snap.TotalEvents, "sessions", snap.UniqueSessions)
	return snap, nil
}

// GetHourlyAggregation returns the cached snapshot of the hour containing t,
// generating it on a miss.
func (e *Engine) GetHourlyAggregation(ctx context.Context, t time.Time) (*HourlySnapshot, error) {
	start := e.StartOfHour(t)

	if snap, ok := lookupSnapshot(ctx, e, e.hourly, kindHourly, HourlyKey(start)); ok {
		// JSON drops the location; report the window as requested.
		snap.Timestamp = start
		if snap.PopularPages == nil {
			snap.PopularPages = []PopularPage{}
		}
		return snap, nil
	}

	return e.GenerateHourlyAggregation(ctx, start)
}

func (e *Engine) computeHourly(ctx context.Context, start time.Time) (snap *HourlySnapshot, err error) {
	defer func(began time.Time) { e.observe(kindHourly, began, err) }(time.Now())

	snap = &HourlySnapshot{Timestamp: start}
	f := eventFilter{from: start, to: start.Add(time.Hour)}

	g, gctx := errgroup.WithContext(ctx)
	e.addWindowQueries(g, gctx, f, 10, &snap.Metrics)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.GeneratedAt = e.now()
	return snap, nil
}
