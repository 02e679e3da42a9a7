// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package aggregation

import "time"

// Cache keys and lifetimes shared with ingestion.
const (
	hourlyKeyPrefix = "analytics:hourly:"
	dailyKeyPrefix  = "analytics:daily:"
	RealtimeKey     = "analytics:realtime"

	// ActiveSessionsKey is the set of session ids seen recently.
	ActiveSessionsKey = "active_sessions"
	// ActiveSessionTTL bounds how long an idle session stays in the set.
	ActiveSessionTTL = 30 * time.Minute

	pageViewCounterPrefix = "counter:page_views:"
	// PageViewCounterTTL keeps yesterday's counter readable for a day.
	PageViewCounterTTL = 48 * time.Hour

	HourlyTTL   = 24 * time.Hour
	DailyTTL    = 7 * 24 * time.Hour
	RealtimeTTL = 60 * time.Second
)

// HourlyKey is the cache key of the hour starting at start, named by its UTC hour.
func HourlyKey(start time.Time) string {
	return hourlyKeyPrefix + start.UTC().Format("2006-01-02T15")
}

// DailyKey is the cache key of the day starting at start, named by its local date.
func DailyKey(start time.Time) string {
	return dailyKeyPrefix + start.Format("2006-01-02")
}

// PageViewCounterKey is the per-day page view counter key for the day of t.
func PageViewCounterKey(t time.Time) string {
	return pageViewCounterPrefix + t.Format("2006-01-02")
}
