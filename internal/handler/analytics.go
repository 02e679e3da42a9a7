// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/isaacson-f/personal-website-sub000/internal/aggregation"
)

const (
	dateLayout         = "2006-01-02"
	defaultSummaryDays = 7
)

// parseTime accepts RFC3339 or a plain date in loc.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use RFC3339 or YYYY-MM-DD", s)
}

func wantsRefresh(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return v
}

// Hourly handles GET /api/analytics/hourly. The hour defaults to the
// current one.
func (h *Handler) Hourly(w http.ResponseWriter, r *http.Request) {
	t := h.now()
	if s := r.URL.Query().Get("timestamp"); s != "" {
		var err error
		if t, err = parseTime(s, h.analytics.Location()); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	get := h.analytics.GetHourlyAggregation
	if wantsRefresh(r) {
		get = h.analytics.GenerateHourlyAggregation
	}
	snap, err := get(r.Context(), t)
	if err != nil {
		h.writeInternalError(w, r, "hourly aggregation failed", err)
		return
	}
	writeJSONSuccess(w, http.StatusOK, map[string]any{"data": snap})
}

// Daily handles GET /api/analytics/daily. The day defaults to today.
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	t := h.now()
	if s := r.URL.Query().Get("date"); s != "" {
		var err error
		if t, err = time.ParseInLocation(dateLayout, s, h.analytics.Location()); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid date: use YYYY-MM-DD")
			return
		}
	}

	get := h.analytics.GetDailyAggregation
	if wantsRefresh(r) {
		get = h.analytics.GenerateDailyAggregation
	}
	snap, err := get(r.Context(), t)
	if err != nil {
		h.writeInternalError(w, r, "daily aggregation failed", err)
		return
	}
	writeJSONSuccess(w, http.StatusOK, map[string]any{"data": snap})
}

// Realtime handles GET /api/analytics/realtime. The live page view counter
// is added when it can be read.
func (h *Handler) Realtime(w http.ResponseWriter, r *http.Request) {
	rt, err := h.analytics.GetRealtimeMetrics(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "realtime metrics failed", err)
		return
	}

	resp := map[string]any{"data": rt}
	if n, err := h.tracker.PageViewsToday(r.Context()); err != nil {
		h.logger.Warn("reading page view counter failed", "error", err)
	} else {
		resp["page_views_today"] = n
	}
	writeJSONSuccess(w, http.StatusOK, resp)
}

// Summary handles GET /api/analytics/summary. Both bounds are inclusive; a
// plain date as "to" covers that whole day. The range defaults to the last
// seven days.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := h.analytics.Location()

	to := h.now()
	if s := q.Get("to"); s != "" {
		var err error
		if to, err = parseTime(s, loc); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(s) == len(dateLayout) {
			to = to.AddDate(0, 0, 1).Add(-time.Second)
		}
	}

	from := to.AddDate(0, 0, -defaultSummaryDays)
	if s := q.Get("from"); s != "" {
		var err error
		if from, err = parseTime(s, loc); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	filters := aggregation.SummaryFilters{EventType: q.Get("event_type"), URL: q.Get("url")}
	summary, err := h.analytics.GenerateSummaryStats(r.Context(), from, to, filters)
	if errors.Is(err, aggregation.ErrInvalidRange) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "summary failed", err)
		return
	}
	writeJSONSuccess(w, http.StatusOK, map[string]any{"data": summary})
}
