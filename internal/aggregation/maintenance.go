// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/isaacson-f/personal-website-sub000/internal/store"
)

// CloseIdleSessions ends sessions whose last activity is older than idle and
// drops them from the active-session set. It returns the number closed.
func (e *Engine) CloseIdleSessions(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := e.now().Add(-idle)

	ids, err := store.New(e.db).CloseIdleSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("closing idle sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := e.cache.SetRemove(ctx, ActiveSessionsKey, ids...); err != nil {
		e.logger.Warn("removing closed sessions from active set failed", "count", len(ids), "error", err)
	}
	e.logger.Info("closed idle sessions", "count", len(ids), "cutoff", cutoff.Format(time.RFC3339))
	return len(ids), nil
}

// PurgeExpiredEvents deletes events older than retentionDays. Zero disables
// retention.
func (e *Engine) PurgeExpiredEvents(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := e.now().AddDate(0, 0, -retentionDays)

	n, err := store.New(e.db).DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging events before %s: %w", cutoff.Format("2006-01-02"), err)
	}
	if n > 0 {
		e.logger.Info("purged expired events", "count", n, "retention_days", retentionDays)
	}
	return n, nil
}

// CacheOccupancy counts the cached snapshots per family.
func (e *Engine) CacheOccupancy(ctx context.Context) (CacheOccupancy, error) {
	var occ CacheOccupancy

	hourly, err := e.cache.Keys(ctx, hourlyKeyPrefix+"*")
	if err != nil {
		return occ, fmt.Errorf("listing hourly keys: %w", err)
	}
	daily, err := e.cache.Keys(ctx, dailyKeyPrefix+"*")
	if err != nil {
		return occ, fmt.Errorf("listing daily keys: %w", err)
	}
	live, err := e.cache.Has(ctx, RealtimeKey)
	if err != nil {
		return occ, fmt.Errorf("checking realtime key: %w", err)
	}
	all, err := e.cache.Keys(ctx, "*")
	if err != nil {
		return occ, fmt.Errorf("listing keys: %w", err)
	}

	occ.Hourly = len(hourly)
	occ.Daily = len(daily)
	if live {
		occ.Realtime = 1
	}
	occ.Other = max(len(all)-occ.Hourly-occ.Daily-occ.Realtime, 0)
	return occ, nil
}
