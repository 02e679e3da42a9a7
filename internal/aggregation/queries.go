// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package aggregation

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/isaacson-f/personal-website-sub000/internal/store"
)

// eventFilter selects events by time range and optional attributes.
// Hourly and daily windows are half-open, summaries are inclusive.
type eventFilter struct {
	from, to  time.Time
	inclusive bool
	eventType string
	url       string
}

func (f eventFilter) filtered() bool {
	return f.eventType != "" || f.url != ""
}

// where renders the predicate over events aliased by prefix ("" or "e.").
func (f eventFilter) where(prefix string) (string, []any) {
	op := "<"
	if f.inclusive {
		op = "<="
	}

	var b strings.Builder
	b.WriteString(prefix + "timestamp >= ? AND " + prefix + "timestamp " + op + " ?")
	args := []any{store.FormatTime(f.from), store.FormatTime(f.to)}

	if f.eventType != "" {
		b.WriteString(" AND " + prefix + "event_type = ?")
		args = append(args, f.eventType)
	}
	if f.url != "" {
		b.WriteString(" AND " + prefix + "url = ?")
		args = append(args, f.url)
	}
	return b.String(), args
}

// sessionWhere selects the sessions a window's session metrics cover: those
// started in range and, when filtered, having a matching event in range.
func (f eventFilter) sessionWhere() (string, []any) {
	op := "<"
	if f.inclusive {
		op = "<="
	}
	clause := "start_time >= ? AND start_time " + op + " ?"
	args := []any{store.FormatTime(f.from), store.FormatTime(f.to)}

	if f.filtered() {
		ew, eargs := f.where("")
		clause += " AND id IN (SELECT session_id FROM events WHERE " + ew + ")"
		args = append(args, eargs...)
	}
	return clause, args
}

// addWindowQueries schedules the six independent metric queries on g.
// Each goroutine writes a distinct field of m.
func (e *Engine) addWindowQueries(g *errgroup.Group, ctx context.Context, f eventFilter, pageLimit int, m *Metrics) {
	g.Go(func() error {
		w, args := f.where("")
		var total any
		if err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE `+w, args...).Scan(&total); err != nil {
			return fmtErr("counting events", err)
		}
		m.TotalEvents = normalizeCount(total)
		return nil
	})

	g.Go(func() error {
		w, args := f.where("")
		var sessions, views any
		err := e.db.QueryRowContext(ctx, `
			SELECT COUNT(DISTINCT session_id),
			       SUM(CASE WHEN event_type = 'page_view' THEN 1 ELSE 0 END)
			FROM events WHERE `+w, args...).Scan(&sessions, &views)
		if err != nil {
			return fmtErr("counting sessions and page views", err)
		}
		m.UniqueSessions = normalizeCount(sessions)
		m.PageViews = normalizeCount(views)
		return nil
	})

	g.Go(func() error {
		visitors, err := e.countVisitors(ctx, f)
		if err != nil {
			return err
		}
		m.UniqueVisitors = visitors
		return nil
	})

	g.Go(func() error {
		w, args := f.sessionWhere()
		var avg any
		err := e.db.QueryRowContext(ctx, `
			SELECT AVG(duration_seconds) FROM sessions
			WHERE duration_seconds IS NOT NULL AND `+w, args...).Scan(&avg)
		if err != nil {
			return fmtErr("averaging session duration", err)
		}
		m.AvgSessionDuration = roundSeconds(normalizeAverage(avg))
		return nil
	})

	g.Go(func() error {
		w, args := f.sessionWhere()
		var total, bounced any
		err := e.db.QueryRowContext(ctx, `
			SELECT COUNT(*), SUM(CASE WHEN page_views = 1 THEN 1 ELSE 0 END)
			FROM sessions WHERE `+w, args...).Scan(&total, &bounced)
		if err != nil {
			return fmtErr("counting bounced sessions", err)
		}
		m.BounceRate = bounceRate(normalizeCount(bounced), normalizeCount(total))
		return nil
	})

	g.Go(func() error {
		pages, err := e.topPages(ctx, f, pageLimit)
		if err != nil {
			return err
		}
		m.PopularPages = pages
		return nil
	})
}

func (e *Engine) countVisitors(ctx context.Context, f eventFilter) (int64, error) {
	w, args := f.where("e.")
	var visitors any
	err := e.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT s.visitor_id)
		FROM events e JOIN sessions s ON s.id = e.session_id
		WHERE `+w, args...).Scan(&visitors)
	if err != nil {
		return 0, fmtErr("counting visitors", err)
	}
	return normalizeCount(visitors), nil
}

// topPages ranks page_view URLs by views, ties broken by URL.
func (e *Engine) topPages(ctx context.Context, f eventFilter, limit int) ([]PopularPage, error) {
	w, args := f.where("")
	args = append(args, limit)

	rows, err := e.db.QueryContext(ctx, `
		SELECT url, COUNT(*) AS views, COUNT(DISTINCT session_id) AS unique_sessions
		FROM events
		WHERE event_type = 'page_view' AND `+w+`
		GROUP BY url
		ORDER BY views DESC, url ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmtErr("ranking pages", err)
	}
	defer func() { _ = rows.Close() }()

	pages := make([]PopularPage, 0, limit)
	for rows.Next() {
		var (
			p              PopularPage
			views, uniques any
		)
		if err := rows.Scan(&p.URL, &views, &uniques); err != nil {
			return nil, fmtErr("scanning page row", err)
		}
		p.Views = normalizeCount(views)
		p.UniqueSessions = normalizeCount(uniques)
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmtErr("ranking pages", err)
	}
	return pages, nil
}

// offsetSeconds is the engine location's UTC offset at t.
func (e *Engine) offsetSeconds(t time.Time) int {
	_, off := t.In(e.loc).Zone()
	return off
}
