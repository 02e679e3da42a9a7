// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package aggregation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// GenerateDailyAggregation computes the snapshot of the local day containing
// t, including the 24-slot hourly breakdown, and caches it for DailyTTL. The
// cached copy omits the breakdown.
func (e *Engine) GenerateDailyAggregation(ctx context.Context, t time.Time) (*DailySnapshot, error) {
	start := e.StartOfDay(t)
	key := DailyKey(start)

	snap, err := e.computeDaily(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("daily aggregation %s: %w", key, err)
	}

	cached := *snap
	cached.HourlyBreakdown = nil
	storeSnapshot(ctx, e, e.daily, kindDaily, key, &cached, DailyTTL)

	e.logger.Debug("daily aggregation complete", "date", snap.Date,
		"events", snap.TotalEvents, "sessions", snap.UniqueSessions)
	return snap, nil
}

// GetDailyAggregation returns the cached snapshot of the day containing t,
// generating it on a miss. Cache hits carry no hourly breakdown.
func (e *Engine) GetDailyAggregation(ctx context.Context, t time.Time) (*DailySnapshot, error) {
	start := e.StartOfDay(t)

	if snap, ok := lookupSnapshot(ctx, e, e.daily, kindDaily, DailyKey(start)); ok {
		snap.Date = start.Format("2006-01-02")
		snap.HourlyBreakdown = nil
		if snap.PopularPages == nil {
			snap.PopularPages = []PopularPage{}
		}
		return snap, nil
	}

	return e.GenerateDailyAggregation(ctx, start)
}

func (e *Engine) computeDaily(ctx context.Context, start time.Time) (snap *DailySnapshot, err error) {
	defer func(began time.Time) { e.observe(kindDaily, began, err) }(time.Now())

	// A calendar day, not 24h: DST days are 23 or 25 hours long.
	end := start.AddDate(0, 0, 1)
	snap = &DailySnapshot{Date: start.Format("2006-01-02")}
	f := eventFilter{from: start, to: end}

	g, gctx := errgroup.WithContext(ctx)
	e.addWindowQueries(g, gctx, f, 20, &snap.Metrics)
	g.Go(func() error {
		slots, err := e.hourlyBreakdown(gctx, f)
		if err != nil {
			return err
		}
		snap.HourlyBreakdown = slots
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.GeneratedAt = e.now()
	return snap, nil
}

// hourlyBreakdown counts events and sessions per local hour of day. All 24
// slots are present.
func (e *Engine) hourlyBreakdown(ctx context.Context, f eventFilter) ([]HourSlot, error) {
	hourExpr := e.db.Dialect().HourOfDay("timestamp", e.offsetSeconds(f.from))
	w, args := f.where("")

	rows, err := e.db.QueryContext(ctx, `
		SELECT `+hourExpr+` AS hour, COUNT(*), COUNT(DISTINCT session_id)
		FROM events WHERE `+w+`
		GROUP BY 1`, args...)
	if err != nil {
		return nil, fmtErr("hourly breakdown", err)
	}
	defer func() { _ = rows.Close() }()

	slots := make([]HourSlot, 24)
	for h := range slots {
		slots[h].Hour = h
	}
	for rows.Next() {
		var hour, events, sessions any
		if err := rows.Scan(&hour, &events, &sessions); err != nil {
			return nil, fmtErr("scanning hourly breakdown", err)
		}
		h := normalizeCount(hour)
		if h < 0 || h > 23 {
			continue
		}
		slots[h].Events += normalizeCount(events)
		slots[h].Sessions += normalizeCount(sessions)
	}
	if err := rows.Err(); err != nil {
		return nil, fmtErr("hourly breakdown", err)
	}
	return slots, nil
}
