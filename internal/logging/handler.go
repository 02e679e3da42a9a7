// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging builds the service logger and a slog handler that counts
// warnings and errors into Prometheus so log-level spikes show up on dashboards.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// ParseLevel converts a config level name into a slog.Level.
// Unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a text logger writing to w at the given level. When reg is not
// nil, WARN and ERROR records are also counted in analytics_log_messages_total.
func New(w io.Writer, level string, reg prometheus.Registerer) *slog.Logger {
	var h slog.Handler = slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	if reg != nil {
		h = NewCountingHandler(h, reg)
	}
	return slog.New(h)
}

// CountingHandler is a slog.Handler that wraps another handler and counts
// records at WARN level and above, labelled by level.
type CountingHandler struct {
	inner    slog.Handler
	messages *prometheus.CounterVec
	level    slog.Level // Minimum level to count (default: WARN)
}

// NewCountingHandler creates a CountingHandler that wraps the given handler and
// registers its counter with reg.
func NewCountingHandler(inner slog.Handler, reg prometheus.Registerer) *CountingHandler {
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_log_messages_total",
		Help: "Number of log records at WARN level and above",
	}, []string{"level"})

	if err := reg.Register(messages); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			messages = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	return &CountingHandler{
		inner:    inner,
		messages: messages,
		level:    slog.LevelWarn,
	}
}

// Enabled implements slog.Handler.
func (h *CountingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *CountingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level {
		h.messages.WithLabelValues(levelLabel(r.Level)).Inc()
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *CountingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CountingHandler{
		inner:    h.inner.WithAttrs(attrs),
		messages: h.messages,
		level:    h.level,
	}
}

// WithGroup implements slog.Handler.
func (h *CountingHandler) WithGroup(name string) slog.Handler {
	return &CountingHandler{
		inner:    h.inner.WithGroup(name),
		messages: h.messages,
		level:    h.level,
	}
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	default:
		return "info"
	}
}
