// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TypedCache provides type-safe caching operations using generics.
// It wraps a Cache implementation and handles JSON serialization.
type TypedCache[T any] struct {
	cache      Cache
	defaultTTL time.Duration
}

// NewTypedCache creates a new TypedCache wrapping the given cache implementation.
func NewTypedCache[T any](cache Cache, defaultTTL time.Duration) *TypedCache[T] {
	return &TypedCache[T]{
		cache:      cache,
		defaultTTL: defaultTTL,
	}
}

// TryGet retrieves a value and reports whether it was found.
// A miss is (nil, false, nil). Backend and decode failures are returned so
// callers can log them before treating the lookup as a miss.
func (c *TypedCache[T]) TryGet(ctx context.Context, key string) (*T, bool, error) {
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false, fmt.Errorf("decoding cached %q: %w", key, err)
	}

	return &value, true, nil
}

// Store writes a value with a custom TTL (0 uses the default).
func (c *TypedCache[T]) Store(ctx context.Context, key string, value *T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	return c.cache.Set(ctx, key, data, ttl)
}
