// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package aggregation

import "time"

// PopularPage is one row of a ranked page list.
type PopularPage struct {
	URL            string `json:"url"`
	Views          int64  `json:"views"`
	UniqueSessions int64  `json:"unique_sessions"`
}

// Metrics are the figures shared by hourly and daily snapshots.
type Metrics struct {
	TotalEvents        int64         `json:"total_events"`
	UniqueSessions     int64         `json:"unique_sessions"`
	PageViews          int64         `json:"page_views"`
	UniqueVisitors     int64         `json:"unique_visitors"`
	AvgSessionDuration float64       `json:"avg_session_duration"` // whole seconds
	BounceRate         float64       `json:"bounce_rate"`          // percent, 2 decimals
	PopularPages       []PopularPage `json:"popular_pages"`
}

// HourlySnapshot is the rollup of one clock hour.
type HourlySnapshot struct {
	Timestamp time.Time `json:"timestamp"` // start of the hour
	Metrics
	GeneratedAt time.Time `json:"generated_at"`
}

// HourSlot is one hour-of-day entry of a daily breakdown.
type HourSlot struct {
	Hour     int   `json:"hour"`
	Events   int64 `json:"events"`
	Sessions int64 `json:"sessions"`
}

// DailySnapshot is the rollup of one calendar day in the engine location.
// HourlyBreakdown is only populated on freshly generated snapshots.
type DailySnapshot struct {
	Date string `json:"date"` // YYYY-MM-DD
	Metrics
	HourlyBreakdown []HourSlot `json:"hourly_breakdown,omitempty"`
	GeneratedAt     time.Time  `json:"generated_at"`
}

// RealtimeMetrics is the short-lived live view. ActiveSessions is nil when
// the session set could not be read.
type RealtimeMetrics struct {
	ActiveSessions      *int64        `json:"active_sessions"`
	PageViewsLastHour   int64         `json:"page_views_last_hour"`
	UniqueVisitorsToday int64         `json:"unique_visitors_today"`
	TopPages            []PopularPage `json:"top_pages"`
	Timestamp           time.Time     `json:"timestamp"`
}

// SummaryFilters narrow a summary to matching events. Empty fields match all.
type SummaryFilters struct {
	EventType string `json:"event_type,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ReferrerCount is one row of the referrer ranking.
type ReferrerCount struct {
	Referrer string `json:"referrer"`
	Visits   int64  `json:"visits"`
}

// DayCount is one day of a summary breakdown.
type DayCount struct {
	Date     string `json:"date"`
	Events   int64  `json:"events"`
	Sessions int64  `json:"sessions"`
	Visitors int64  `json:"visitors"`
}

// Summary is an uncached report over an arbitrary inclusive range.
type Summary struct {
	From               time.Time       `json:"from"`
	To                 time.Time       `json:"to"`
	Filters            SummaryFilters  `json:"filters"`
	TotalEvents        int64           `json:"total_events"`
	UniqueSessions     int64           `json:"unique_sessions"`
	UniqueVisitors     int64           `json:"unique_visitors"`
	PageViews          int64           `json:"page_views"`
	AvgSessionDuration float64         `json:"avg_session_duration"`
	BounceRate         float64         `json:"bounce_rate"`
	TopPages           []PopularPage   `json:"top_pages"`
	TopReferrers       []ReferrerCount `json:"top_referrers"`
	DailyBreakdown     []DayCount      `json:"daily_breakdown"`
	GeneratedAt        time.Time       `json:"generated_at"`
}

// CacheOccupancy counts cached keys per family.
type CacheOccupancy struct {
	Hourly   int `json:"hourly"`
	Daily    int `json:"daily"`
	Realtime int `json:"realtime"`
	Other    int `json:"other"`
}
