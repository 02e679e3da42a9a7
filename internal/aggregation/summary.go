// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package aggregation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// GenerateSummaryStats computes an uncached summary over the inclusive range
// [from, to]. Filters restrict the event queries; session metrics cover only
// sessions with a matching event in range.
func (e *Engine) GenerateSummaryStats(ctx context.Context, from, to time.Time, filters SummaryFilters) (s *Summary, err error) {
	if from.After(to) {
		return nil, ErrInvalidRange
	}
	defer func(began time.Time) { e.observe(kindSummary, began, err) }(time.Now())

	f := eventFilter{from: from, to: to, inclusive: true, eventType: filters.EventType, url: filters.URL}
	s = &Summary{From: from, To: to, Filters: filters}

	var m Metrics
	g, gctx := errgroup.WithContext(ctx)
	e.addWindowQueries(g, gctx, f, 10, &m)
	g.Go(func() error {
		refs, err := e.topReferrers(gctx, f, 10)
		if err != nil {
			return err
		}
		s.TopReferrers = refs
		return nil
	})
	g.Go(func() error {
		days, err := e.dailyBreakdown(gctx, f)
		if err != nil {
			return err
		}
		s.DailyBreakdown = days
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("summary %s..%s: %w", from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}

	s.TotalEvents = m.TotalEvents
	s.UniqueSessions = m.UniqueSessions
	s.UniqueVisitors = m.UniqueVisitors
	s.PageViews = m.PageViews
	s.AvgSessionDuration = m.AvgSessionDuration
	s.BounceRate = m.BounceRate
	s.TopPages = m.PopularPages
	s.GeneratedAt = e.now()
	return s, nil
}

func (e *Engine) topReferrers(ctx context.Context, f eventFilter, limit int) ([]ReferrerCount, error) {
	w, args := f.where("")
	args = append(args, limit)

	rows, err := e.db.QueryContext(ctx, `
		SELECT referrer, COUNT(*) AS visits
		FROM events
		WHERE referrer IS NOT NULL AND referrer <> '' AND `+w+`
		GROUP BY referrer
		ORDER BY visits DESC, referrer ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmtErr("ranking referrers", err)
	}
	defer func() { _ = rows.Close() }()

	refs := make([]ReferrerCount, 0, limit)
	for rows.Next() {
		var (
			r      ReferrerCount
			visits any
		)
		if err := rows.Scan(&r.Referrer, &visits); err != nil {
			return nil, fmtErr("scanning referrer row", err)
		}
		r.Visits = normalizeCount(visits)
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmtErr("ranking referrers", err)
	}
	return refs, nil
}

// dailyBreakdown groups matching events by local date, oldest first.
func (e *Engine) dailyBreakdown(ctx context.Context, f eventFilter) ([]DayCount, error) {
	dateExpr := e.db.Dialect().Date("e.timestamp", e.offsetSeconds(f.from))
	w, args := f.where("e.")

	rows, err := e.db.QueryContext(ctx, `
		SELECT `+dateExpr+` AS day, COUNT(*), COUNT(DISTINCT e.session_id), COUNT(DISTINCT s.visitor_id)
		FROM events e LEFT JOIN sessions s ON s.id = e.session_id
		WHERE `+w+`
		GROUP BY 1
		ORDER BY 1`, args...)
	if err != nil {
		return nil, fmtErr("daily breakdown", err)
	}
	defer func() { _ = rows.Close() }()

	days := []DayCount{}
	for rows.Next() {
		var (
			d                          DayCount
			events, sessions, visitors any
		)
		if err := rows.Scan(&d.Date, &events, &sessions, &visitors); err != nil {
			return nil, fmtErr("scanning daily breakdown", err)
		}
		d.Events = normalizeCount(events)
		d.Sessions = normalizeCount(sessions)
		d.Visitors = normalizeCount(visitors)
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmtErr("daily breakdown", err)
	}
	return days, nil
}
