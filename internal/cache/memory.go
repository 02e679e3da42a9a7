// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache is a thread-safe in-memory cache implementation.
// Plain values and sets share one keyspace, as in Redis.
type MemoryCache struct {
	mu         sync.Mutex
	data       map[string]*memoryCacheEntry
	defaultTTL time.Duration
	maxSize    int // Maximum number of entries (0 = unlimited)
	stopCh     chan struct{}
	closed     atomic.Bool
	now        func() time.Time

	// Statistics
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	size   atomic.Int64 // Approximate size in bytes
}

// memoryCacheEntry holds a cached value or set with its expiration time.
// A zero expiresAt never expires.
type memoryCacheEntry struct {
	value     []byte
	members   map[string]struct{}
	expiresAt time.Time
	size      int64
}

func (e *memoryCacheEntry) isSet() bool {
	return e.members != nil
}

// MemoryCacheOptions configures the memory cache.
type MemoryCacheOptions struct {
	DefaultTTL      time.Duration
	MaxSize         int           // Maximum number of entries (0 = unlimited)
	CleanupInterval time.Duration // Interval for expired entry cleanup (0 = no cleanup)
}

// NewMemoryCache creates a new memory cache with the given options.
func NewMemoryCache(opts MemoryCacheOptions) *MemoryCache {
	c := &MemoryCache{
		data:       make(map[string]*memoryCacheEntry),
		defaultTTL: opts.DefaultTTL,
		maxSize:    opts.MaxSize,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}

	if opts.CleanupInterval > 0 {
		go c.cleanupLoop(opts.CleanupInterval)
	}

	return c
}

// NewSimpleMemoryCache creates a memory cache with just a default TTL.
func NewSimpleMemoryCache(ttl time.Duration) *MemoryCache {
	return NewMemoryCache(MemoryCacheOptions{
		DefaultTTL:      ttl,
		CleanupInterval: time.Minute,
	})
}

// lookup returns a live entry, dropping it if expired. Caller holds c.mu.
func (c *MemoryCache) lookup(key string) (*memoryCacheEntry, bool) {
	entry, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if c.expired(entry, c.now()) {
		c.deleteLocked(key, entry)
		return nil, false
	}
	return entry, true
}

func (c *MemoryCache) expired(entry *memoryCacheEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && now.After(entry.expiresAt)
}

func (c *MemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// store inserts an entry, evicting expired ones first when at capacity.
// Caller holds c.mu.
func (c *MemoryCache) store(key string, entry *memoryCacheEntry) {
	if old, ok := c.data[key]; ok {
		c.size.Add(-old.size)
	} else if c.maxSize > 0 && len(c.data) >= c.maxSize {
		c.removeExpiredLocked()
	}
	c.data[key] = entry
	c.size.Add(entry.size)
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if !ok {
		c.misses.Add(1)
		return nil, ErrCacheMiss
	}
	if entry.isSet() {
		return nil, ErrWrongType
	}

	c.hits.Add(1)
	// Return a copy to prevent mutation
	result := make([]byte, len(entry.value))
	copy(result, entry.value)
	return result, nil
}

// Set stores a value in the cache with the specified TTL.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	c.mu.Lock()
	c.store(key, &memoryCacheEntry{
		value:     valueCopy,
		expiresAt: c.expiry(ttl),
		size:      int64(len(value)),
	})
	c.mu.Unlock()

	c.sets.Add(1)
	return nil
}

// Delete removes a key from the cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	c.mu.Lock()
	if entry, ok := c.data[key]; ok {
		c.deleteLocked(key, entry)
	}
	c.mu.Unlock()
	return nil
}

// Clear removes all entries from the cache.
func (c *MemoryCache) Clear(_ context.Context) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	c.mu.Lock()
	c.data = make(map[string]*memoryCacheEntry)
	c.size.Store(0)
	c.mu.Unlock()
	return nil
}

// Has checks if a key exists in the cache (and is not expired).
func (c *MemoryCache) Has(_ context.Context, key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.lookup(key)
	return ok, nil
}

// SetAdd adds members to a set and refreshes its TTL.
func (c *MemoryCache) SetAdd(_ context.Context, key string, ttl time.Duration, members ...string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if ok && !entry.isSet() {
		return ErrWrongType
	}
	if !ok {
		entry = &memoryCacheEntry{members: make(map[string]struct{}, len(members))}
		c.store(key, entry)
	}

	for _, m := range members {
		if _, exists := entry.members[m]; !exists {
			entry.members[m] = struct{}{}
			entry.size += int64(len(m))
			c.size.Add(int64(len(m)))
		}
	}
	entry.expiresAt = c.expiry(ttl)
	return nil
}

// SetRemove removes members from a set. Emptied sets are deleted.
func (c *MemoryCache) SetRemove(_ context.Context, key string, members ...string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if !ok {
		return nil
	}
	if !entry.isSet() {
		return ErrWrongType
	}

	for _, m := range members {
		if _, exists := entry.members[m]; exists {
			delete(entry.members, m)
			entry.size -= int64(len(m))
			c.size.Add(-int64(len(m)))
		}
	}
	if len(entry.members) == 0 {
		c.deleteLocked(key, entry)
	}
	return nil
}

// SetCard returns the number of members in a set.
func (c *MemoryCache) SetCard(_ context.Context, key string) (int64, error) {
	if c.closed.Load() {
		return 0, ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if !ok {
		return 0, nil
	}
	if !entry.isSet() {
		return 0, ErrWrongType
	}
	return int64(len(entry.members)), nil
}

// Incr increments an integer counter stored as its decimal text.
func (c *MemoryCache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if c.closed.Load() {
		return 0, ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		n         int64
		expiresAt time.Time
	)
	entry, ok := c.lookup(key)
	if ok {
		if entry.isSet() {
			return 0, ErrWrongType
		}
		parsed, err := strconv.ParseInt(string(entry.value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %q is not an integer", key)
		}
		n = parsed
		expiresAt = entry.expiresAt
	} else {
		expiresAt = c.expiry(ttl)
	}

	n++
	value := []byte(strconv.FormatInt(n, 10))
	c.store(key, &memoryCacheEntry{
		value:     value,
		expiresAt: expiresAt,
		size:      int64(len(value)),
	})
	c.sets.Add(1)
	return n, nil
}

// Keys returns the live keys matching a glob pattern, sorted.
func (c *MemoryCache) Keys(_ context.Context, pattern string) ([]string, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid key pattern %q: %w", pattern, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var keys []string
	for key, entry := range c.data {
		if c.expired(entry, now) {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close stops the cleanup goroutine and releases resources.
func (c *MemoryCache) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
	return nil
}

// Stats returns current cache statistics.
func (c *MemoryCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	c.mu.Lock()
	items := len(c.data)
	c.mu.Unlock()

	return Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Items:   items,
		HitRate: hitRate(hits, misses),
		Size:    c.size.Load(),
	}
}

// ResetStats resets the cache statistics.
func (c *MemoryCache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
}

// deleteLocked removes an entry and updates the size counter. Caller holds c.mu.
func (c *MemoryCache) deleteLocked(key string, entry *memoryCacheEntry) {
	delete(c.data, key)
	c.size.Add(-entry.size)
}

// removeExpiredLocked removes all expired entries. Caller holds c.mu.
func (c *MemoryCache) removeExpiredLocked() {
	now := c.now()
	for key, entry := range c.data {
		if c.expired(entry, now) {
			c.deleteLocked(key, entry)
		}
	}
}

// cleanupLoop periodically removes expired entries.
func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.removeExpiredLocked()
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

// Ensure MemoryCache implements Cache and StatsProvider.
var (
	_ Cache         = (*MemoryCache)(nil)
	_ StatsProvider = (*MemoryCache)(nil)
)
