// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the periodic aggregation, cleanup and real-time jobs
// and exposes manual triggers and backfill.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/isaacson-f/personal-website-sub000/internal/aggregation"
)

// Job names.
const (
	JobHourly   = "hourly"
	JobDaily    = "daily"
	JobCleanup  = "cleanup"
	JobRealtime = "realtime"
)

// Aggregator is the part of the aggregation engine the scheduler drives.
type Aggregator interface {
	GenerateHourlyAggregation(ctx context.Context, t time.Time) (*aggregation.HourlySnapshot, error)
	GenerateDailyAggregation(ctx context.Context, t time.Time) (*aggregation.DailySnapshot, error)
	GenerateRealtimeMetrics(ctx context.Context) (*aggregation.RealtimeMetrics, error)
	CloseIdleSessions(ctx context.Context, idle time.Duration) (int, error)
	PurgeExpiredEvents(ctx context.Context, retentionDays int) (int64, error)
	CacheOccupancy(ctx context.Context) (aggregation.CacheOccupancy, error)
	StartOfHour(t time.Time) time.Time
	StartOfDay(t time.Time) time.Time
	Location() *time.Location
}

// Options configures a Scheduler. Zero values take the defaults noted.
type Options struct {
	Logger *slog.Logger
	// JobTimeout bounds a single tick. Zero means no timeout.
	JobTimeout time.Duration
	// IdleTimeout closes sessions inactive for longer. Default: 30m.
	IdleTimeout time.Duration
	// RetentionDays purges older events during cleanup. Zero keeps everything.
	RetentionDays int
	// BackfillDelay paces backfill iterations. Default: 100ms.
	BackfillDelay time.Duration
	Now           func() time.Time
	Registerer    prometheus.Registerer
}

type job struct {
	name     string
	first    func(now time.Time) time.Time
	interval time.Duration
	run      func(ctx context.Context) error
	entryID  cron.EntryID
}

// Scheduler owns the cron instance and the four periodic jobs.
type Scheduler struct {
	agg     Aggregator
	opts    Options
	logger  *slog.Logger
	metrics *jobMetrics

	mu      sync.Mutex
	cron    *cron.Cron
	jobs    []*job
	running bool
}

// New creates a stopped scheduler.
func New(agg Aggregator, opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.BackfillDelay <= 0 {
		opts.BackfillDelay = 100 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}

	s := &Scheduler{
		agg:     agg,
		opts:    opts,
		logger:  opts.Logger,
		metrics: newJobMetrics(opts.Registerer),
	}
	s.jobs = []*job{
		{name: JobHourly, first: nextHourlyRun, interval: time.Hour, run: s.runHourly},
		{name: JobDaily, first: nextDailyRun, interval: 24 * time.Hour, run: s.runDaily},
		{name: JobCleanup, first: after(5 * time.Minute), interval: 6 * time.Hour, run: s.runCleanup},
		{name: JobRealtime, first: after(10 * time.Second), interval: time.Minute, run: s.runRealtime},
	}
	return s
}

func after(d time.Duration) func(time.Time) time.Time {
	return func(now time.Time) time.Time { return now.Add(d) }
}

// Start schedules the four jobs. Starting a running scheduler only logs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("scheduler already running")
		return nil
	}

	loc := s.agg.Location()
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)

	now := s.opts.Now().In(loc)
	for _, j := range s.jobs {
		j.entryID = c.Schedule(everySchedule{first: j.first(now), interval: j.interval}, s.wrap(j))
	}

	c.Start()
	s.cron = c
	s.running = true
	s.logger.Info("scheduler started", "jobs", len(c.Entries()), "location", loc.String())
	return nil
}

// Stop removes every job and waits for running ticks. Stopping a stopped
// scheduler only logs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Info("scheduler not running")
		return
	}

	for _, j := range s.jobs {
		s.cron.Remove(j.entryID)
		j.entryID = 0
	}
	<-s.cron.Stop().Done()

	s.cron = nil
	s.running = false
	s.logger.Info("scheduler stopped")
}

// JobStatus describes one periodic job.
type JobStatus struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	PrevRun   *time.Time `json:"prev_run,omitempty"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	IsRunning bool                 `json:"is_running"`
	Jobs      map[string]JobStatus `json:"jobs"`
}

// Status reports the running flag and each job's schedule.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{IsRunning: s.running, Jobs: make(map[string]JobStatus, len(s.jobs))}
	for _, j := range s.jobs {
		var js JobStatus
		if s.cron != nil && j.entryID != 0 {
			if entry := s.cron.Entry(j.entryID); entry.Valid() {
				js.Scheduled = true
				js.NextRun = timePtr(entry.Next)
				js.PrevRun = timePtr(entry.Prev)
			}
		}
		st.Jobs[j.name] = js
	}
	return st
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// wrap turns a job into a cron.Job with its own timeout and error boundary.
func (s *Scheduler) wrap(j *job) cron.FuncJob {
	return func() {
		ctx := context.Background()
		if s.opts.JobTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.JobTimeout)
			defer cancel()
		}

		if err := j.run(ctx); err != nil {
			s.metrics.runs.WithLabelValues(j.name, "error").Inc()
			s.logger.Error("scheduled job failed", "job", j.name, "error", err)
			return
		}
		s.metrics.runs.WithLabelValues(j.name, "ok").Inc()
		s.metrics.lastSuccess.WithLabelValues(j.name).SetToCurrentTime()
	}
}

// runHourly aggregates the previous completed hour.
func (s *Scheduler) runHourly(ctx context.Context) error {
	prev := s.agg.StartOfHour(s.opts.Now()).Add(-time.Hour)
	_, err := s.agg.GenerateHourlyAggregation(ctx, prev)
	return err
}

// runDaily aggregates the previous day.
func (s *Scheduler) runDaily(ctx context.Context) error {
	yesterday := s.agg.StartOfDay(s.opts.Now()).AddDate(0, 0, -1)
	_, err := s.agg.GenerateDailyAggregation(ctx, yesterday)
	return err
}

// runCleanup closes idle sessions, purges expired events and reports cache
// occupancy. Each step runs even if an earlier one failed.
func (s *Scheduler) runCleanup(ctx context.Context) error {
	var errs []error

	closed, err := s.agg.CloseIdleSessions(ctx, s.opts.IdleTimeout)
	if err != nil {
		errs = append(errs, err)
	}
	purged, err := s.agg.PurgeExpiredEvents(ctx, s.opts.RetentionDays)
	if err != nil {
		errs = append(errs, err)
	}
	occ, err := s.agg.CacheOccupancy(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		s.logger.Info("cleanup complete",
			"closed_sessions", closed,
			"purged_events", purged,
			"cached_hourly", occ.Hourly,
			"cached_daily", occ.Daily,
			"cached_realtime", occ.Realtime,
			"cached_other", occ.Other,
		)
	}
	return errors.Join(errs...)
}

func (s *Scheduler) runRealtime(ctx context.Context) error {
	rt, err := s.agg.GenerateRealtimeMetrics(ctx)
	if err != nil {
		return err
	}
	if s.opts.Now().Minute()%10 == 0 {
		var active any = "unknown"
		if rt.ActiveSessions != nil {
			active = *rt.ActiveSessions
		}
		s.logger.Info("realtime metrics updated",
			"active_sessions", active,
			"page_views_last_hour", rt.PageViewsLastHour,
			"unique_visitors_today", rt.UniqueVisitorsToday,
		)
	}
	return nil
}
