// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Queries holds the write-side and lookup statements used by ingestion and
// maintenance jobs.
type Queries struct {
	db Querier
}

// New creates Queries over any Querier (a *DB or a transaction).
func New(db Querier) *Queries {
	return &Queries{db: db}
}

// CreateEventParams holds the columns of a new event.
type CreateEventParams struct {
	ID         string
	SessionID  string
	EventType  string
	URL        string
	Referrer   string
	UserAgent  string
	IPAddress  string
	Properties string
	Timestamp  time.Time
}

// CreateEvent inserts an event.
func (q *Queries) CreateEvent(ctx context.Context, arg CreateEventParams) error {
	props := arg.Properties
	if props == "" {
		props = "{}"
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO events (id, session_id, event_type, url, referrer, user_agent, ip_address, properties, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.SessionID, arg.EventType, arg.URL,
		nullString(arg.Referrer), nullString(arg.UserAgent), nullString(arg.IPAddress),
		props, FormatTime(arg.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetSession loads a session by id. Returns ErrNotFound when missing.
func (q *Queries) GetSession(ctx context.Context, id string) (Session, error) {
	var (
		s                   Session
		start, end, last    Timestamp
		returning           bool
		deviceInfo, geoInfo sql.NullString
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, visitor_id, start_time, end_time, last_activity, page_views,
		       duration_seconds, is_returning_visitor, device_info, geo_info
		FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.VisitorID, &start, &end, &last, &s.PageViews,
		&s.DurationSeconds, &returning, &deviceInfo, &geoInfo)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("loading session: %w", err)
	}

	s.StartTime = start.Time
	s.LastActivity = last.Time
	s.EndTime = sql.NullTime{Time: end.Time, Valid: end.Valid}
	s.IsReturningVisitor = returning
	s.DeviceInfo = deviceInfo.String
	s.GeoInfo = geoInfo.String
	return s, nil
}

// CreateSessionParams holds the columns of a new session.
type CreateSessionParams struct {
	ID                 string
	VisitorID          string
	StartTime          time.Time
	IsReturningVisitor bool
	DeviceInfo         string
	GeoInfo            string
}

// CreateSession inserts an open session with zero page views.
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	start := FormatTime(arg.StartTime)
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sessions (id, visitor_id, start_time, last_activity, page_views, is_returning_visitor, device_info, geo_info)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		arg.ID, nullString(arg.VisitorID), start, start, arg.IsReturningVisitor,
		jsonOrEmpty(arg.DeviceInfo), jsonOrEmpty(arg.GeoInfo),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// TouchSession records activity on an open session, adding pageViews to its counter.
func (q *Queries) TouchSession(ctx context.Context, id string, at time.Time, pageViews int) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE sessions SET last_activity = ?, page_views = page_views + ?
		WHERE id = ? AND end_time IS NULL`,
		FormatTime(at), pageViews, id,
	)
	if err != nil {
		return fmt.Errorf("updating session activity: %w", err)
	}
	return nil
}

// EndSession closes an open session at the given time and stores its duration.
// Closing an already closed session is a no-op.
func (q *Queries) EndSession(ctx context.Context, id string, at time.Time) error {
	ts := FormatTime(at)
	_, err := q.db.ExecContext(ctx, `
		UPDATE sessions
		SET end_time = ?, last_activity = ?, duration_seconds = `+q.db.Dialect().SecondsBetween("start_time", "?")+`
		WHERE id = ? AND end_time IS NULL`,
		ts, ts, ts, id,
	)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	return nil
}

// CloseIdleSessions closes every open session whose last activity is before
// cutoff. The end time is the last activity. Returns the closed session ids.
func (q *Queries) CloseIdleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	d := q.db.Dialect()
	rows, err := q.db.QueryContext(ctx, `
		UPDATE sessions
		SET end_time = last_activity, duration_seconds = `+d.SecondsBetween("start_time", "last_activity")+`
		WHERE end_time IS NULL AND last_activity < ?
		RETURNING id`,
		FormatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("closing idle sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning closed session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("closing idle sessions: %w", err)
	}
	return ids, nil
}

// DeleteEventsBefore removes events older than cutoff and returns the count.
func (q *Queries) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting expired events: %w", err)
	}
	return res.RowsAffected()
}

// GetVisitor loads a visitor by id. Returns ErrNotFound when missing.
func (q *Queries) GetVisitor(ctx context.Context, id string) (Visitor, error) {
	var (
		v           Visitor
		first, last Timestamp
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, first_visit, last_visit, total_sessions, total_page_views
		FROM visitors WHERE id = ?`, id,
	).Scan(&v.ID, &first, &last, &v.TotalSessions, &v.TotalPageViews)
	if errors.Is(err, sql.ErrNoRows) {
		return Visitor{}, ErrNotFound
	}
	if err != nil {
		return Visitor{}, fmt.Errorf("loading visitor: %w", err)
	}
	v.FirstVisit = first.Time
	v.LastVisit = last.Time
	return v, nil
}

// CreateVisitor inserts a visitor with one session and no page views.
func (q *Queries) CreateVisitor(ctx context.Context, id string, at time.Time) error {
	ts := FormatTime(at)
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO visitors (id, first_visit, last_visit, total_sessions, total_page_views)
		VALUES (?, ?, ?, 1, 0)`,
		id, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("inserting visitor: %w", err)
	}
	return nil
}

// RecordVisitorSession bumps a returning visitor's session counter.
func (q *Queries) RecordVisitorSession(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE visitors SET total_sessions = total_sessions + 1, last_visit = ?
		WHERE id = ?`,
		FormatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("updating visitor sessions: %w", err)
	}
	return nil
}

// RecordVisitorPageView bumps a visitor's page view counter.
func (q *Queries) RecordVisitorPageView(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE visitors SET total_page_views = total_page_views + 1, last_visit = ?
		WHERE id = ?`,
		FormatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("updating visitor page views: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func jsonOrEmpty(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
