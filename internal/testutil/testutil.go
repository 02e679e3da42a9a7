// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package testutil provides shared test helpers: quiet loggers, a migrated
// temporary event store and row seeding helpers.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/isaacson-f/personal-website-sub000/internal/store"
)

// TestLogger creates a test logger that only outputs warnings and errors.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// TestLoggerSilent creates a test logger that only outputs errors.
func TestLoggerSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// TestDB creates a temporary SQLite event store with migrations applied.
// The database is closed when the test ends.
func TestDB(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.NewDB(filepath.Join(t.TempDir(), "analytics-test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := store.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

// SessionSeed describes a session row inserted directly, bypassing ingestion.
type SessionSeed struct {
	ID        string
	VisitorID string // Created in visitors when set and missing
	Start     time.Time
	End       time.Time // Zero for an open session
	PageViews int
}

// AddSession inserts a session row. When End is set the session is closed and
// its duration is End-Start.
func AddSession(t *testing.T, db *store.DB, s SessionSeed) {
	t.Helper()
	ctx := context.Background()

	var visitorID any
	if s.VisitorID != "" {
		visitorID = s.VisitorID
		if _, err := db.ExecContext(ctx, `
			INSERT INTO visitors (id, first_visit, last_visit, total_sessions, total_page_views)
			VALUES (?, ?, ?, 1, 0) ON CONFLICT (id) DO NOTHING`,
			s.VisitorID, store.FormatTime(s.Start), store.FormatTime(s.Start)); err != nil {
			t.Fatalf("inserting visitor %s: %v", s.VisitorID, err)
		}
	}

	var endTime, duration any
	last := s.Start
	if !s.End.IsZero() {
		endTime = store.FormatTime(s.End)
		duration = int64(s.End.Sub(s.Start).Seconds())
		last = s.End
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO sessions (id, visitor_id, start_time, end_time, last_activity, page_views, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, visitorID, store.FormatTime(s.Start), endTime, store.FormatTime(last), s.PageViews, duration); err != nil {
		t.Fatalf("inserting session %s: %v", s.ID, err)
	}
}

var eventSeq atomic.Int64

// AddEvent inserts an event row.
func AddEvent(t *testing.T, db *store.DB, sessionID, eventType, url string, at time.Time) {
	t.Helper()
	AddEventWithReferrer(t, db, sessionID, eventType, url, "", at)
}

// AddEventWithReferrer inserts an event row with a referrer.
func AddEventWithReferrer(t *testing.T, db *store.DB, sessionID, eventType, url, referrer string, at time.Time) {
	t.Helper()

	err := store.New(db).CreateEvent(context.Background(), store.CreateEventParams{
		ID:        fmt.Sprintf("evt-%d", eventSeq.Add(1)),
		SessionID: sessionID,
		EventType: eventType,
		URL:       url,
		Referrer:  referrer,
		Timestamp: at,
	})
	if err != nil {
		t.Fatalf("inserting event: %v", err)
	}
}
