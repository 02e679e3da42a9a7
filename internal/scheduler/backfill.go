// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Granularity selects hourly or daily buckets for backfill.
type Granularity string

const (
	Hourly Granularity = "hourly"
	Daily  Granularity = "daily"
)

var (
	// ErrInvalidGranularity is returned for anything but Hourly or Daily.
	ErrInvalidGranularity = errors.New("invalid granularity: use hourly or daily")
	// ErrInvalidRange is returned when a backfill starts after it ends.
	ErrInvalidRange = errors.New("invalid range: start is after end")
)

// ParseGranularity validates a granularity name.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case Hourly, Daily:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
	}
}

// TriggerHourlyAggregation regenerates the hour containing t. Errors are
// returned as-is.
func (s *Scheduler) TriggerHourlyAggregation(ctx context.Context, t time.Time) error {
	s.logger.Info("manually triggering hourly aggregation", "timestamp", t.Format(time.RFC3339))
	_, err := s.agg.GenerateHourlyAggregation(ctx, t)
	return err
}

// TriggerDailyAggregation regenerates the day containing t. Errors are
// returned as-is.
func (s *Scheduler) TriggerDailyAggregation(ctx context.Context, t time.Time) error {
	s.logger.Info("manually triggering daily aggregation", "date", t.Format("2006-01-02"))
	_, err := s.agg.GenerateDailyAggregation(ctx, t)
	return err
}

// BackfillAggregations regenerates every bucket in [start, end], one at a
// time with BackfillDelay between them. The first error aborts the run.
// It returns the number of buckets completed.
func (s *Scheduler) BackfillAggregations(ctx context.Context, start, end time.Time, g Granularity) (int, error) {
	var (
		cur  time.Time
		next func(time.Time) time.Time
		run  func(context.Context, time.Time) error
	)
	switch g {
	case Hourly:
		cur = s.agg.StartOfHour(start)
		next = func(t time.Time) time.Time { return t.Add(time.Hour) }
		run = func(ctx context.Context, t time.Time) error {
			_, err := s.agg.GenerateHourlyAggregation(ctx, t)
			return err
		}
	case Daily:
		cur = s.agg.StartOfDay(start)
		next = func(t time.Time) time.Time { return s.agg.StartOfDay(t.AddDate(0, 0, 1)) }
		run = func(ctx context.Context, t time.Time) error {
			_, err := s.agg.GenerateDailyAggregation(ctx, t)
			return err
		}
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidGranularity, string(g))
	}
	if start.After(end) {
		return 0, ErrInvalidRange
	}

	s.logger.Info("backfill started", "granularity", string(g),
		"start", cur.Format(time.RFC3339), "end", end.Format(time.RFC3339))

	done := 0
	for !cur.After(end) {
		if err := run(ctx, cur); err != nil {
			return done, fmt.Errorf("backfill %s at %s: %w", g, cur.Format(time.RFC3339), err)
		}
		done++

		cur = next(cur)
		if cur.After(end) {
			break
		}
		if err := sleep(ctx, s.opts.BackfillDelay); err != nil {
			return done, err
		}
	}

	s.logger.Info("backfill complete", "granularity", string(g), "buckets", done)
	return done, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
