// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isaacson-f/personal-website-sub000/internal/aggregation"
	"github.com/isaacson-f/personal-website-sub000/internal/cache"
	"github.com/isaacson-f/personal-website-sub000/internal/geoip"
	"github.com/isaacson-f/personal-website-sub000/internal/store"
	"github.com/isaacson-f/personal-website-sub000/internal/testutil"
)

const (
	chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	botUA    = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

type stubLocator struct{}

func (stubLocator) Locate(string) geoip.Location {
	return geoip.Location{CountryCode: "DE", Country: "Germany", Continent: "EU"}
}

type trackerFixture struct {
	db      *store.DB
	cache   *cache.MemoryCache
	tracker *Tracker
	now     time.Time
}

func newFixture(t *testing.T) *trackerFixture {
	t.Helper()
	f := &trackerFixture{
		db:    testutil.TestDB(t),
		cache: cache.NewSimpleMemoryCache(time.Hour),
		now:   time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.tracker = NewTracker(f.db, f.cache, stubLocator{}, Options{
		Salt:     "test-salt",
		Location: time.UTC,
		Logger:   testutil.TestLoggerSilent(),
		Now:      func() time.Time { return f.now },
	})
	return f
}

var browser = Client{IP: "203.0.113.7", UserAgent: chromeUA, AcceptLanguage: "de-DE,de;q=0.9,en;q=0.8"}

func TestTrack_NewSessionAndVisitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.tracker.Track(ctx, Beacon{EventType: store.EventPageView, URL: "/blog?id=1&x=2"}, browser)
	require.NoError(t, err)
	assert.True(t, res.NewSession)
	assert.NotEmpty(t, res.SessionID)
	assert.Contains(t, res.VisitorID, "fp-")

	q := store.New(f.db)
	s, err := q.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.PageViews)
	assert.False(t, s.IsReturningVisitor)
	assert.False(t, s.Ended())

	var device DeviceInfo
	require.NoError(t, json.Unmarshal([]byte(s.DeviceInfo), &device))
	assert.Equal(t, "Chrome", device.Browser)
	assert.Equal(t, "Windows", device.OS)
	assert.Equal(t, "desktop", device.DeviceType)

	var geo GeoInfo
	require.NoError(t, json.Unmarshal([]byte(s.GeoInfo), &geo))
	assert.Equal(t, GeoInfo{CountryCode: "DE", Country: "Germany", Continent: "EU", Language: "de"}, geo)

	v, err := q.GetVisitor(ctx, res.VisitorID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.TotalSessions)
	assert.Equal(t, int64(1), v.TotalPageViews)

	var url, ip string
	require.NoError(t, f.db.QueryRowContext(ctx,
		`SELECT url, ip_address FROM events WHERE session_id = ?`, res.SessionID).Scan(&url, &ip))
	assert.Equal(t, "/blog?id=1&x=2", url)
	assert.Equal(t, "203.0.113.0", ip, "stored IPs are anonymized")
}

func TestTrack_ContinuesOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.tracker.Track(ctx, Beacon{EventType: store.EventPageView, URL: "/"}, browser)
	require.NoError(t, err)

	f.now = f.now.Add(time.Minute)
	second, err := f.tracker.Track(ctx, Beacon{SessionID: first.SessionID, EventType: store.EventPageView, URL: "/about"}, browser)
	require.NoError(t, err)
	assert.False(t, second.NewSession)
	assert.Equal(t, first.SessionID, second.SessionID)

	_, err = f.tracker.Track(ctx, Beacon{SessionID: first.SessionID, EventType: store.EventClick, URL: "/about"}, browser)
	require.NoError(t, err)

	s, err := store.New(f.db).GetSession(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.PageViews, "only page views count")
	assert.True(t, s.LastActivity.Equal(f.now))
}

func TestTrack_SessionEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.tracker.Track(ctx, Beacon{SessionID: "abc-123", EventType: store.EventPageView, URL: "/"}, browser)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", res.SessionID, "an unknown client session id is adopted")

	n, err := f.cache.SetCard(ctx, aggregation.ActiveSessionsKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	f.now = f.now.Add(90 * time.Second)
	_, err = f.tracker.Track(ctx, Beacon{SessionID: "abc-123", EventType: store.EventSessionEnd, URL: "/"}, browser)
	require.NoError(t, err)

	s, err := store.New(f.db).GetSession(ctx, "abc-123")
	require.NoError(t, err)
	assert.True(t, s.Ended())
	assert.Equal(t, int64(90), s.DurationSeconds.Int64)

	n, err = f.cache.SetCard(ctx, aggregation.ActiveSessionsKey)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A beacon for the ended session starts a fresh one.
	f.now = f.now.Add(time.Minute)
	next, err := f.tracker.Track(ctx, Beacon{SessionID: "abc-123", EventType: store.EventPageView, URL: "/"}, browser)
	require.NoError(t, err)
	assert.True(t, next.NewSession)
	assert.NotEqual(t, "abc-123", next.SessionID)

	ns, err := store.New(f.db).GetSession(ctx, next.SessionID)
	require.NoError(t, err)
	assert.True(t, ns.IsReturningVisitor)
}

func TestTrack_SessionEndWithoutOpenSessionIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := store.New(f.db)

	first, err := f.tracker.Track(ctx, Beacon{EventType: store.EventPageView, URL: "/"}, browser)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	_, err = f.tracker.Track(ctx, Beacon{SessionID: first.SessionID, EventType: store.EventSessionEnd, URL: "/"}, browser)
	require.NoError(t, err)

	ended, err := q.GetSession(ctx, first.SessionID)
	require.NoError(t, err)

	tests := []struct {
		name      string
		sessionID string
	}{
		{"already ended", first.SessionID},
		{"unknown", "never-seen"},
		{"missing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.now = f.now.Add(time.Minute)
			res, err := f.tracker.Track(ctx, Beacon{SessionID: tt.sessionID, EventType: store.EventSessionEnd, URL: "/"}, browser)
			require.NoError(t, err)
			assert.True(t, res.Dropped)
			assert.False(t, res.NewSession)
		})
	}

	var sessions, events int
	require.NoError(t, f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&sessions))
	require.NoError(t, f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&events))
	assert.Equal(t, 1, sessions, "no session is created for a stray session end")
	assert.Equal(t, 2, events)

	v, err := q.GetVisitor(ctx, first.VisitorID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.TotalSessions)

	s, err := q.GetSession(ctx, first.SessionID)
	require.NoError(t, err)
	assert.True(t, s.EndTime.Time.Equal(ended.EndTime.Time), "end time is not moved")

	_, err = q.GetSession(ctx, "never-seen")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTrack_ExplicitVisitorID(t *testing.T) {
	f := newFixture(t)

	res, err := f.tracker.Track(context.Background(),
		Beacon{VisitorID: "cookie_42", EventType: store.EventPageView, URL: "https://example.com/x#top"}, browser)
	require.NoError(t, err)
	assert.Equal(t, "cookie_42", res.VisitorID)

	var url string
	require.NoError(t, f.db.QueryRowContext(context.Background(),
		`SELECT url FROM events WHERE session_id = ?`, res.SessionID).Scan(&url))
	assert.Equal(t, "https://example.com/x", url)
}

func TestTrack_PageViewCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range 3 {
		_, err := f.tracker.Track(ctx, Beacon{EventType: store.EventPageView, URL: "/"}, browser)
		require.NoError(t, err)
	}
	_, err := f.tracker.Track(ctx, Beacon{EventType: store.EventScroll, URL: "/"}, browser)
	require.NoError(t, err)

	n, err := f.tracker.PageViewsToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ok, err := f.cache.Has(ctx, "counter:page_views:2024-03-10")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTrack_DropsBots(t *testing.T) {
	f := newFixture(t)

	res, err := f.tracker.Track(context.Background(),
		Beacon{EventType: store.EventPageView, URL: "/"}, Client{IP: "66.249.66.1", UserAgent: botUA})
	require.NoError(t, err)
	assert.True(t, res.Dropped)

	var count int
	require.NoError(t, f.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM events`).Scan(&count))
	assert.Zero(t, count)
}

func TestTrack_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		beacon Beacon
	}{
		{"unknown type", Beacon{EventType: "purchase", URL: "/"}},
		{"missing url", Beacon{EventType: store.EventPageView}},
		{"script url", Beacon{EventType: store.EventPageView, URL: "javascript:alert(1)"}},
		{"relative url", Beacon{EventType: store.EventPageView, URL: "page.html"}},
		{"bad session id", Beacon{SessionID: "a b", EventType: store.EventPageView, URL: "/"}},
		{"deep properties", Beacon{EventType: store.EventCustom, URL: "/", Properties: map[string]any{
			"a": map[string]any{"b": map[string]any{"c": map[string]any{"d": map[string]any{"e": map[string]any{}}}}},
		}}},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tracker.Track(context.Background(), tt.beacon, browser)
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("Track() error = %v, want ErrInvalidEvent", err)
			}
		})
	}
}

func TestTrack_SanitizesProperties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.tracker.Track(ctx, Beacon{
		EventType: store.EventCustom,
		URL:       "/<b>shop</b>",
		Referrer:  "not a url at all",
		Properties: map[string]any{
			"label": "<script>alert(1)</script>Buy",
			"count": 2.0,
			"tags":  []any{"<i>a</i>", true},
		},
	}, browser)
	require.NoError(t, err)

	var url, props string
	var referrer *string
	require.NoError(t, f.db.QueryRowContext(ctx,
		`SELECT url, referrer, properties FROM events WHERE session_id = ?`, res.SessionID).Scan(&url, &referrer, &props))

	assert.Equal(t, "/shop", url)
	assert.Nil(t, referrer, "unparseable referrers are dropped")
	assert.JSONEq(t, `{"label":"Buy","count":2,"tags":["a",true]}`, props)
}

func TestFingerprint(t *testing.T) {
	key := newFingerprintKey("salt")

	a := fingerprint(key, "198.51.100.10", chromeUA)
	b := fingerprint(key, "198.51.100.99", chromeUA)
	assert.Equal(t, a, b, "addresses in the same /24 share a fingerprint")

	assert.NotEqual(t, a, fingerprint(key, "198.51.101.10", chromeUA))
	assert.NotEqual(t, a, fingerprint(newFingerprintKey("other"), "198.51.100.10", chromeUA))
	assert.Len(t, a, len("fp-")+32)
}
