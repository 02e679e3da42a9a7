// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"database/sql"
	"time"
)

// Event types accepted by the tracker.
const (
	EventPageView     = "page_view"
	EventClick        = "click"
	EventScroll       = "scroll"
	EventFormSubmit   = "form_submit"
	EventCustom       = "custom"
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
)

// EventTypes lists every valid event type.
var EventTypes = []string{
	EventPageView, EventClick, EventScroll, EventFormSubmit,
	EventCustom, EventSessionStart, EventSessionEnd,
}

// IsValidEventType reports whether t is a known event type.
func IsValidEventType(t string) bool {
	for _, et := range EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Event is a single immutable tracked fact.
type Event struct {
	ID         string
	SessionID  string
	EventType  string
	URL        string
	Referrer   sql.NullString
	UserAgent  sql.NullString
	IPAddress  sql.NullString
	Properties string // JSON object
	Timestamp  time.Time
}

// Session is one visitor's browsing window.
type Session struct {
	ID                 string
	VisitorID          sql.NullString
	StartTime          time.Time
	EndTime            sql.NullTime
	LastActivity       time.Time
	PageViews          int64
	DurationSeconds    sql.NullInt64
	IsReturningVisitor bool
	DeviceInfo         string // JSON object
	GeoInfo            string // JSON object
}

// Ended reports whether the session has been closed.
func (s Session) Ended() bool {
	return s.EndTime.Valid
}

// Visitor is a long-lived identity across sessions.
type Visitor struct {
	ID             string
	FirstVisit     time.Time
	LastVisit      time.Time
	TotalSessions  int64
	TotalPageViews int64
}
