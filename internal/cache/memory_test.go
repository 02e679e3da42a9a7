// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestMemoryCache() *MemoryCache {
	return NewMemoryCache(MemoryCacheOptions{
		DefaultTTL:      time.Hour,
		MaxSize:         100,
		CleanupInterval: 0, // No background cleanup for tests
	})
}

func TestMemoryCache_BasicOperations(t *testing.T) {
	cache := newTestMemoryCache()
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	if err := cache.Set(ctx, "key1", []byte("value1"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := cache.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("expected value1, got %s", string(val))
	}

	has, err := cache.Has(ctx, "key1")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if !has {
		t.Error("expected key1 to exist")
	}

	if err := cache.Delete(ctx, "key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := cache.Get(ctx, "key1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCache_Expiration(t *testing.T) {
	cache := newTestMemoryCache()
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	if err := cache.Set(ctx, "short", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	now = now.Add(59 * time.Second)
	if _, err := cache.Get(ctx, "short"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := cache.Get(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after expiry, got %v", err)
	}
	if has, _ := cache.Has(ctx, "short"); has {
		t.Error("expired key reported by Has")
	}
}

func TestMemoryCache_ValueIsCopied(t *testing.T) {
	cache := newTestMemoryCache()
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	value := []byte("original")
	_ = cache.Set(ctx, "k", value, 0)
	value[0] = 'X'

	got, _ := cache.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("stored value mutated: %q", got)
	}
	got[0] = 'Y'
	again, _ := cache.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("returned slice aliases stored value: %q", again)
	}
}

func TestMemoryCache_Sets(t *testing.T) {
	cache := newTestMemoryCache()
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	n, err := cache.SetCard(ctx, "active_sessions")
	if err != nil || n != 0 {
		t.Fatalf("SetCard on missing key = %d, %v; want 0, nil", n, err)
	}

	if err := cache.SetAdd(ctx, "active_sessions", time.Minute, "s1", "s2", "s2"); err != nil {
		t.Fatalf("SetAdd failed: %v", err)
	}
	if err := cache.SetAdd(ctx, "active_sessions", time.Minute, "s3"); err != nil {
		t.Fatalf("SetAdd failed: %v", err)
	}

	if n, _ := cache.SetCard(ctx, "active_sessions"); n != 3 {
		t.Errorf("SetCard = %d, want 3", n)
	}

	if err := cache.SetRemove(ctx, "active_sessions", "s1", "missing"); err != nil {
		t.Fatalf("SetRemove failed: %v", err)
	}
	if n, _ := cache.SetCard(ctx, "active_sessions"); n != 2 {
		t.Errorf("SetCard after remove = %d, want 2", n)
	}

	_ = cache.SetRemove(ctx, "active_sessions", "s2", "s3")
	if has, _ := cache.Has(ctx, "active_sessions"); has {
		t.Error("empty set should be deleted")
	}
}

func TestMemoryCache_SetTTLRefreshedOnAdd(t *testing.T) {
	cache := newTestMemoryCache()
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_ = cache.SetAdd(ctx, "set", time.Minute, "a")
	now = now.Add(50 * time.Second)
	_ = cache.SetAdd(ctx, "set", time.Minute, "b")
	now = now.Add(50 * time.Second)

	if n, _ := cache.SetCard(ctx, "set"); n != 2 {
		t.Errorf("SetCard = %d, want 2 (TTL should have been refreshed)", n)
	}
}

func TestMemoryCache_WrongType(t *testing.T) {
	cache := newTestMemoryCache()
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	_ = cache.Set(ctx, "plain", []byte("v"), 0)
	_ = cache.SetAdd(ctx, "set", 0, "m")

	if err := cache.SetAdd(ctx, "plain", 0, "m"); !errors.Is(err, ErrWrongType) {
		t.Errorf("SetAdd on value key: %v, want ErrWrongType", err)
	}
	if _, err := cache.SetCard(ctx, "plain"); !errors.Is(err, ErrWrongType) {
		t.Errorf("SetCard on value key: %v, want ErrWrongType", err)
	}
	if _, err := cache.Get(ctx, "set"); !errors.Is(err, ErrWrongType) {
		t.Errorf("Get on set key: %v, want ErrWrongType", err)
	}
	if _, err := cache.Incr(ctx, "set", 0); !errors.Is(err, ErrWrongType) {
		t.Errorf("Incr on set key: %v, want ErrWrongType", err)
	}
}

func TestMemoryCache_Incr(t *testing.T) {
	cache := newTestMemoryCache()
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := cache.Incr(ctx, "counter:page_views:2024-01-15", time.Hour)
		if err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
		if n != i {
			t.Errorf("Incr = %d, want %d", n, i)
		}
	}

	val, err := cache.Get(ctx, "counter:page_views:2024-01-15")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "3" {
		t.Errorf("counter value = %q, want %q", val, "3")
	}

	_ = cache.Set(ctx, "text", []byte("abc"), 0)
	if _, err := cache.Incr(ctx, "text", 0); err == nil {
		t.Error("Incr on non-integer value should fail")
	}
}

func TestMemoryCache_IncrKeepsOriginalExpiry(t *testing.T) {
	cache := newTestMemoryCache()
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_, _ = cache.Incr(ctx, "c", time.Minute)
	now = now.Add(40 * time.Second)
	_, _ = cache.Incr(ctx, "c", time.Minute)
	now = now.Add(40 * time.Second)

	if has, _ := cache.Has(ctx, "c"); has {
		t.Error("counter TTL should not be extended by later increments")
	}
}

func TestMemoryCache_Keys(t *testing.T) {
	cache := newTestMemoryCache()
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	_ = cache.Set(ctx, "analytics:hourly:2024-01-15T10", []byte("{}"), 0)
	_ = cache.Set(ctx, "analytics:hourly:2024-01-15T11", []byte("{}"), 0)
	_ = cache.Set(ctx, "analytics:daily:2024-01-15", []byte("{}"), 0)
	_ = cache.SetAdd(ctx, "active_sessions", 0, "s1")

	keys, err := cache.Keys(ctx, "analytics:hourly:*")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	want := []string{"analytics:hourly:2024-01-15T10", "analytics:hourly:2024-01-15T11"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("Keys = %v, want %v", keys, want)
	}

	all, _ := cache.Keys(ctx, "*")
	if len(all) != 4 {
		t.Errorf("Keys(*) returned %d keys, want 4", len(all))
	}

	if _, err := cache.Keys(ctx, "[bad"); err == nil {
		t.Error("Keys with malformed pattern should fail")
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	cache := newTestMemoryCache()
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	_ = cache.Set(ctx, "a", []byte("1"), 0)
	_ = cache.SetAdd(ctx, "b", 0, "x")

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if stats := cache.Stats(); stats.Items != 0 || stats.Size != 0 {
		t.Errorf("after Clear: items=%d size=%d, want 0/0", stats.Items, stats.Size)
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	cache := newTestMemoryCache()
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	_ = cache.Set(ctx, "k", []byte("v"), 0)
	_, _ = cache.Get(ctx, "k")
	_, _ = cache.Get(ctx, "missing")

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Sets != 1 {
		t.Errorf("stats = %+v, want 1 hit, 1 miss, 1 set", stats)
	}
	if stats.HitRate != 50 {
		t.Errorf("HitRate = %v, want 50", stats.HitRate)
	}

	cache.ResetStats()
	if stats := cache.Stats(); stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("after ResetStats: %+v", stats)
	}
}

func TestMemoryCache_Closed(t *testing.T) {
	cache := newTestMemoryCache()
	_ = cache.Close()
	_ = cache.Close() // idempotent
	ctx := context.Background()

	if _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Get after Close: %v", err)
	}
	if err := cache.SetAdd(ctx, "k", 0, "m"); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("SetAdd after Close: %v", err)
	}
	if _, err := cache.Incr(ctx, "k", 0); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Incr after Close: %v", err)
	}
}

func TestMemoryCache_ConcurrentIncr(t *testing.T) {
	cache := newTestMemoryCache()
	defer func() { _ = cache.Close() }()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cache.Incr(ctx, "counter", time.Hour)
			_ = cache.SetAdd(ctx, "set", time.Hour, "same")
		}()
	}
	wg.Wait()

	val, _ := cache.Get(ctx, "counter")
	if string(val) != "50" {
		t.Errorf("counter = %s, want 50", val)
	}
	if n, _ := cache.SetCard(ctx, "set"); n != 1 {
		t.Errorf("SetCard = %d, want 1", n)
	}
}
