// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package aggregation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// GenerateRealtimeMetrics computes the live snapshot and caches it for
// RealtimeTTL. ActiveSessions is nil when the active-session set could not be
// read.
func (e *Engine) GenerateRealtimeMetrics(ctx context.Context) (rt *RealtimeMetrics, err error) {
	defer func(began time.Time) { e.observe(kindRealtime, began, err) }(time.Now())

	now := e.now()
	rt = &RealtimeMetrics{Timestamp: now}

	if n, cerr := e.cache.SetCard(ctx, ActiveSessionsKey); cerr != nil {
		e.logger.Warn("reading active sessions failed", "key", ActiveSessionsKey, "error", cerr)
	} else {
		rt.ActiveSessions = &n
	}

	lastHour := eventFilter{from: now.Add(-time.Hour), to: now, inclusive: true}
	today := eventFilter{from: e.StartOfDay(now), to: now, inclusive: true}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, args := lastHour.where("")
		var views any
		if err := e.db.QueryRowContext(gctx,
			`SELECT COUNT(*) FROM events WHERE event_type = 'page_view' AND `+w, args...).Scan(&views); err != nil {
			return fmtErr("counting recent page views", err)
		}
		rt.PageViewsLastHour = normalizeCount(views)
		return nil
	})
	g.Go(func() error {
		visitors, err := e.countVisitors(gctx, today)
		if err != nil {
			return err
		}
		rt.UniqueVisitorsToday = visitors
		return nil
	})
	g.Go(func() error {
		pages, err := e.topPages(gctx, lastHour, 5)
		if err != nil {
			return err
		}
		rt.TopPages = pages
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("realtime metrics: %w", err)
	}

	storeSnapshot(ctx, e, e.live, kindRealtime, RealtimeKey, rt, RealtimeTTL)
	return rt, nil
}

// GetRealtimeMetrics serves the cached live snapshot, generating it on a miss.
func (e *Engine) GetRealtimeMetrics(ctx context.Context) (*RealtimeMetrics, error) {
	if rt, ok := lookupSnapshot(ctx, e, e.live, kindRealtime, RealtimeKey); ok {
		if rt.TopPages == nil {
			rt.TopPages = []PopularPage{}
		}
		return rt, nil
	}
	return e.GenerateRealtimeMetrics(ctx)
}
