// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cache provides the key-value store used for rollups, real-time
// counters and the active-session set.
package cache

import (
	"context"
	"time"
)

// Cache defines the interface for cache implementations.
// All implementations must be thread-safe.
// Values are []byte so that in-memory and Redis caches are interchangeable.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil and ErrCacheMiss if not found or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the specified TTL.
	// If TTL is 0, uses the default TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries from the cache.
	Clear(ctx context.Context) error

	// Has checks if a key exists in the cache (and is not expired).
	Has(ctx context.Context, key string) (bool, error)

	// SetAdd adds members to the set stored at key and refreshes its TTL.
	SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error

	// SetRemove removes members from the set stored at key.
	SetRemove(ctx context.Context, key string, members ...string) error

	// SetCard returns the number of members of the set stored at key.
	// A missing key is an empty set, not a miss.
	SetCard(ctx context.Context, key string) (int64, error)

	// Incr atomically increments the integer stored at key and returns the
	// new value. The TTL is applied when the key is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Keys lists the keys matching a glob pattern (*, ?, [...]).
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close releases any resources held by the cache.
	Close() error
}

// StatsProvider is an optional interface for caches that provide statistics.
type StatsProvider interface {
	Stats() Stats
	ResetStats()
}

// Stats holds cache statistics.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Items   int     `json:"items"`
	HitRate float64 `json:"hit_rate"`
	Size    int64   `json:"size_bytes,omitempty"` // Approximate size in bytes (memory backend only)
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Error represents an error type for cache operations.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrCacheMiss indicates the key was not found in cache or has expired.
	ErrCacheMiss Error = "cache miss"

	// ErrCacheClosed indicates the cache has been closed.
	ErrCacheClosed Error = "cache closed"

	// ErrWrongType indicates a value operation on a set key or the reverse.
	ErrWrongType Error = "operation against a key holding the wrong kind of value"
)
