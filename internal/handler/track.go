// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"net/http"

	"github.com/isaacson-f/personal-website-sub000/internal/ingest"
)

// Track handles POST /api/track.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	var b ingest.Beacon
	if err := decodeJSON(w, r, &b); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.tracker.Track(r.Context(), b, ingest.ClientFromRequest(r))
	if errors.Is(err, ingest.ErrInvalidEvent) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "tracking event failed", err)
		return
	}

	if res.Dropped {
		writeJSONSuccess(w, http.StatusAccepted, map[string]any{"dropped": true})
		return
	}
	writeJSONSuccess(w, http.StatusAccepted, map[string]any{
		"session_id":  res.SessionID,
		"visitor_id":  res.VisitorID,
		"new_session": res.NewSession,
	})
}
