// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewRedisCacheFromURL("redis://"+mr.Addr()+"/0", "test:", time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache_Basic(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "test-key", []byte("test-value"), time.Minute))
	assert.True(t, mr.Exists("test:test-key"), "key should be stored with prefix")

	got, err := c.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", string(got))

	exists, err := c.Has(ctx, "test-key")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "test-key"))
	_, err = c.Get(ctx, "test-key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Expiration(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_DefaultTTL(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	assert.Equal(t, time.Minute, mr.TTL("test:k"))
}

func TestRedisCache_Sets(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	n, err := c.SetCard(ctx, "active_sessions")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, c.SetAdd(ctx, "active_sessions", 30*time.Minute, "s1", "s2", "s2"))
	n, err = c.SetCard(ctx, "active_sessions")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 30*time.Minute, mr.TTL("test:active_sessions"))

	require.NoError(t, c.SetRemove(ctx, "active_sessions", "s1"))
	n, _ = c.SetCard(ctx, "active_sessions")
	assert.Equal(t, int64(1), n)

	// No members is a no-op, not a protocol error.
	assert.NoError(t, c.SetAdd(ctx, "active_sessions", time.Minute))
	assert.NoError(t, c.SetRemove(ctx, "active_sessions"))
}

func TestRedisCache_Incr(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	n, err := c.Incr(ctx, "counter:page_views:2024-01-15", 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 48*time.Hour, mr.TTL("test:counter:page_views:2024-01-15"))

	mr.FastForward(time.Hour)
	n, err = c.Incr(ctx, "counter:page_views:2024-01-15", 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 47*time.Hour, mr.TTL("test:counter:page_views:2024-01-15"))
}

func TestRedisCache_IncrRepairsMissingTTL(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	// A counter written without an expiry gets one on its next increment.
	require.NoError(t, mr.Set("test:counter:page_views:2024-01-15", "5"))
	assert.Zero(t, mr.TTL("test:counter:page_views:2024-01-15"))

	n, err := c.Incr(ctx, "counter:page_views:2024-01-15", 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, 48*time.Hour, mr.TTL("test:counter:page_views:2024-01-15"))
}

func TestRedisCache_IncrServerError(t *testing.T) {
	c, mr := newTestRedisCache(t)
	mr.SetError("ERR server failure")

	_, err := c.Incr(context.Background(), "counter:page_views:2024-01-15", 48*time.Hour)
	assert.Error(t, err)

	mr.SetError("")
	assert.False(t, mr.Exists("test:counter:page_views:2024-01-15"))
}

func TestRedisCache_KeysStripsPrefix(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "analytics:hourly:2024-01-15T10", []byte("{}"), 0))
	require.NoError(t, c.Set(ctx, "analytics:daily:2024-01-15", []byte("{}"), 0))
	require.NoError(t, mr.Set("other:analytics:hourly:x", "foreign"))

	keys, err := c.Keys(ctx, "analytics:hourly:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"analytics:hourly:2024-01-15T10"}, keys)
}

func TestRedisCache_ClearOnlyOwnPrefix(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.SetAdd(ctx, "b", 0, "x"))
	require.NoError(t, mr.Set("foreign", "keep"))

	require.NoError(t, c.Clear(ctx))
	assert.False(t, mr.Exists("test:a"))
	assert.False(t, mr.Exists("test:b"))
	assert.True(t, mr.Exists("foreign"))
}

func TestRedisCache_Stats(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), 0)
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Items)
	assert.InDelta(t, 50.0, stats.HitRate, 0.001)
}

func TestRedisCache_ServerErrorIsNotMiss(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	mr.SetError("ERR server failure")
	_, err := c.Get(ctx, "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

func TestRedisCache_Closed(t *testing.T) {
	c, _ := newTestRedisCache(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheClosed)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	opts := DefaultRedisCacheOptions()
	opts.URL = "redis://127.0.0.1:1/0"
	opts.ConnectTimeout = 200 * time.Millisecond

	_, err := NewRedisCache(opts)
	assert.Error(t, err)

	_, err = NewRedisCache(RedisCacheOptions{})
	assert.Error(t, err, "empty URL should be rejected")
}
