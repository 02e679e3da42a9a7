// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// everySchedule fires at first and then every interval after it. Unlike
// cron.Every it is anchored, so the hourly job stays at five past the hour.
type everySchedule struct {
	first    time.Time
	interval time.Duration
}

var _ cron.Schedule = everySchedule{}

// Next returns the first firing strictly after t.
func (s everySchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	n := t.Sub(s.first)/s.interval + 1
	return s.first.Add(n * s.interval)
}

// nextHourlyRun is five minutes past the next hour boundary.
func nextHourlyRun(now time.Time) time.Time {
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	return top.Add(time.Hour + 5*time.Minute)
}

// nextDailyRun is 01:00 today if still ahead, otherwise 01:00 tomorrow.
func nextDailyRun(now time.Time) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), 1, 0, 0, 0, now.Location())
	if !run.After(now) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}
