// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/isaacson-f/personal-website-sub000/internal/scheduler"
)

// Backfill range limits per granularity.
const (
	maxHourlyBackfill = 31 * 24 * time.Hour
	maxDailyBackfill  = 366 * 24 * time.Hour
)

type aggregateRequest struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Aggregate handles POST /api/admin/aggregate.
func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	g, err := scheduler.ParseGranularity(req.Type)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	t := h.now()
	if req.Timestamp != "" {
		if t, err = parseTime(req.Timestamp, h.analytics.Location()); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	trigger := h.jobs.TriggerHourlyAggregation
	if g == scheduler.Daily {
		trigger = h.jobs.TriggerDailyAggregation
	}
	if err := trigger(r.Context(), t); err != nil {
		h.writeInternalError(w, r, "manual aggregation failed", err)
		return
	}

	writeJSONSuccess(w, http.StatusOK, map[string]any{
		"type":      string(g),
		"timestamp": t.Format(time.RFC3339),
	})
}

type backfillRequest struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Granularity string `json:"granularity"`
}

// Backfill handles POST /api/admin/backfill. The run is synchronous and can
// outlast the server write timeout, so the deadline is lifted for it.
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	g, err := scheduler.ParseGranularity(req.Granularity)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	loc := h.analytics.Location()
	start, err := parseTime(req.Start, loc)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "start: "+err.Error())
		return
	}
	end, err := parseTime(req.End, loc)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "end: "+err.Error())
		return
	}

	limit := maxHourlyBackfill
	if g == scheduler.Daily {
		limit = maxDailyBackfill
	}
	if end.Sub(start) > limit {
		writeJSONError(w, http.StatusBadRequest, "range too large for "+string(g)+" backfill")
		return
	}

	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	n, err := h.jobs.BackfillAggregations(r.Context(), start, end, g)
	if errors.Is(err, scheduler.ErrInvalidRange) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("backfill failed", "error", err, "completed", n)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success":   false,
			"error":     "Backfill failed",
			"completed": n,
		})
		return
	}

	writeJSONSuccess(w, http.StatusOK, map[string]any{
		"granularity": string(g),
		"completed":   n,
	})
}

// SchedulerStatus handles GET /api/admin/scheduler.
func (h *Handler) SchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSONSuccess(w, http.StatusOK, map[string]any{"data": h.jobs.Status()})
}
