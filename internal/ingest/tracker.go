// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ingest turns browser beacons into stored events, sessions and
// visitors and keeps the live counters in the cache current.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"

	"github.com/isaacson-f/personal-website-sub000/internal/aggregation"
	"github.com/isaacson-f/personal-website-sub000/internal/cache"
	"github.com/isaacson-f/personal-website-sub000/internal/geoip"
	"github.com/isaacson-f/personal-website-sub000/internal/store"
)

// Locator resolves an IP address to a location.
type Locator interface {
	Locate(ip string) geoip.Location
}

// Options configures a Tracker.
type Options struct {
	// Salt keys visitor fingerprints. An empty salt still works but makes
	// fingerprints predictable.
	Salt string
	// Location names the day of the page view counter. Default: time.Local.
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

// Result reports what Track did with a beacon.
type Result struct {
	SessionID  string `json:"session_id,omitempty"`
	VisitorID  string `json:"visitor_id,omitempty"`
	NewSession bool   `json:"new_session"`
	// Dropped is set for bot traffic and for session ends naming no open
	// session. Such beacons are acknowledged but not stored.
	Dropped bool `json:"dropped,omitempty"`
}

// errNoOpenSession aborts the transaction of a session end that has nothing
// to close.
var errNoOpenSession = errors.New("no open session to end")

// Tracker records beacons.
type Tracker struct {
	db     *store.DB
	cache  cache.Cache
	geo    Locator
	key    []byte
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker. geo may be nil to skip geolocation.
func NewTracker(db *store.DB, c cache.Cache, geo Locator, opts Options) *Tracker {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		db:     db,
		cache:  c,
		geo:    geo,
		key:    newFingerprintKey(opts.Salt),
		loc:    opts.Location,
		logger: opts.Logger,
		now:    opts.Now,
	}
}

// DeviceInfo is stored as JSON on each session.
type DeviceInfo struct {
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os"`
	OSVersion      string `json:"os_version,omitempty"`
	DeviceType     string `json:"device_type"`
}

// GeoInfo is stored as JSON on each session.
type GeoInfo struct {
	CountryCode string `json:"country_code,omitempty"`
	Country     string `json:"country,omitempty"`
	Continent   string `json:"continent,omitempty"`
	Language    string `json:"language,omitempty"`
}

// Track validates and stores one beacon. Invalid beacons return an error
// wrapping ErrInvalidEvent.
func (t *Tracker) Track(ctx context.Context, b Beacon, c Client) (Result, error) {
	ua := useragent.Parse(c.UserAgent)
	if ua.Bot {
		t.logger.Debug("dropping bot beacon", "user_agent", c.UserAgent)
		return Result{Dropped: true}, nil
	}

	beacon, props, err := b.normalize()
	if err != nil {
		return Result{}, err
	}

	now := t.now()
	visitorID := beacon.VisitorID
	if visitorID == "" {
		visitorID = fingerprint(t.key, c.IP, c.UserAgent)
	}

	res := Result{VisitorID: visitorID}
	err = t.db.WithTx(ctx, func(q *store.Queries) error {
		if beacon.EventType == store.EventSessionEnd {
			if err := requireOpenSession(ctx, q, beacon.SessionID); err != nil {
				return err
			}
		}

		sessionID, created, err := t.resolveSession(ctx, q, beacon.SessionID, visitorID, now, ua, c)
		if err != nil {
			return err
		}
		res.SessionID = sessionID
		res.NewSession = created

		if err := q.CreateEvent(ctx, store.CreateEventParams{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			EventType:  beacon.EventType,
			URL:        beacon.URL,
			Referrer:   beacon.Referrer,
			UserAgent:  c.UserAgent,
			IPAddress:  anonymizeIP(c.IP),
			Properties: props,
			Timestamp:  now,
		}); err != nil {
			return err
		}

		switch beacon.EventType {
		case store.EventPageView:
			if err := q.TouchSession(ctx, sessionID, now, 1); err != nil {
				return err
			}
			return q.RecordVisitorPageView(ctx, visitorID, now)
		case store.EventSessionEnd:
			return q.EndSession(ctx, sessionID, now)
		default:
			return q.TouchSession(ctx, sessionID, now, 0)
		}
	})
	if errors.Is(err, errNoOpenSession) {
		t.logger.Debug("dropping session end", "session_id", beacon.SessionID)
		return Result{VisitorID: visitorID, Dropped: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("tracking %s: %w", beacon.EventType, err)
	}

	t.updateCounters(ctx, beacon.EventType, res.SessionID, now)
	return res, nil
}

// requireOpenSession returns errNoOpenSession unless id names a stored session
// that has not ended.
func requireOpenSession(ctx context.Context, q *store.Queries, id string) error {
	if id == "" {
		return errNoOpenSession
	}
	s, err := q.GetSession(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errNoOpenSession
	case err != nil:
		return err
	case s.Ended():
		return errNoOpenSession
	}
	return nil
}

// resolveSession continues an open session or starts a new one. The visitor
// row is created or updated alongside a new session.
func (t *Tracker) resolveSession(ctx context.Context, q *store.Queries, sessionID, visitorID string,
	now time.Time, ua useragent.UserAgent, c Client) (string, bool, error) {
	if sessionID != "" {
		s, err := q.GetSession(ctx, sessionID)
		switch {
		case err == nil && !s.Ended():
			return sessionID, false, nil
		case err == nil:
			// Ended sessions are never reopened.
			sessionID = ""
		case !errors.Is(err, store.ErrNotFound):
			return "", false, err
		}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	returning := true
	if _, err := q.GetVisitor(ctx, visitorID); errors.Is(err, store.ErrNotFound) {
		returning = false
		if err := q.CreateVisitor(ctx, visitorID, now); err != nil {
			return "", false, err
		}
	} else if err != nil {
		return "", false, err
	} else if err := q.RecordVisitorSession(ctx, visitorID, now); err != nil {
		return "", false, err
	}

	device, _ := json.Marshal(deviceInfo(ua))
	geo, _ := json.Marshal(t.geoInfo(c))

	err := q.CreateSession(ctx, store.CreateSessionParams{
		ID:                 sessionID,
		VisitorID:          visitorID,
		StartTime:          now,
		IsReturningVisitor: returning,
		DeviceInfo:         string(device),
		GeoInfo:            string(geo),
	})
	if err != nil {
		return "", false, err
	}
	return sessionID, true, nil
}

// updateCounters maintains the active-session set and the daily page view
// counter. Failures are logged only; the event is already stored.
func (t *Tracker) updateCounters(ctx context.Context, eventType, sessionID string, now time.Time) {
	if eventType == store.EventSessionEnd {
		if err := t.cache.SetRemove(ctx, aggregation.ActiveSessionsKey, sessionID); err != nil {
			t.logger.Warn("removing ended session from active set failed", "session_id", sessionID, "error", err)
		}
		return
	}

	if err := t.cache.SetAdd(ctx, aggregation.ActiveSessionsKey, aggregation.ActiveSessionTTL, sessionID); err != nil {
		t.logger.Warn("updating active sessions failed", "session_id", sessionID, "error", err)
	}
	if eventType == store.EventPageView {
		key := aggregation.PageViewCounterKey(now.In(t.loc))
		if _, err := t.cache.Incr(ctx, key, aggregation.PageViewCounterTTL); err != nil {
			t.logger.Warn("incrementing page view counter failed", "key", key, "error", err)
		}
	}
}

func deviceInfo(ua useragent.UserAgent) DeviceInfo {
	d := DeviceInfo{
		Browser:        ua.Name,
		BrowserVersion: ua.Version,
		OS:             ua.OS,
		OSVersion:      ua.OSVersion,
	}
	if d.Browser == "" {
		d.Browser = "Unknown"
	}
	if d.OS == "" {
		d.OS = "Unknown"
	}

	switch {
	case ua.Mobile:
		d.DeviceType = "mobile"
	case ua.Tablet:
		d.DeviceType = "tablet"
	default:
		d.DeviceType = "desktop"
	}
	return d
}

func (t *Tracker) geoInfo(c Client) GeoInfo {
	g := GeoInfo{Language: primaryLanguage(c.AcceptLanguage)}
	if t.geo != nil {
		loc := t.geo.Locate(c.IP)
		g.CountryCode = loc.CountryCode
		g.Country = loc.Country
		g.Continent = loc.Continent
	}
	return g
}

// PageViewsToday reads the live page view counter for the current day.
func (t *Tracker) PageViewsToday(ctx context.Context) (int64, error) {
	key := aggregation.PageViewCounterKey(t.now().In(t.loc))
	v, err := t.cache.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	if _, err := fmt.Sscan(string(v), &n); err != nil {
		return 0, fmt.Errorf("parsing page view counter: %w", err)
	}
	return n, nil
}
