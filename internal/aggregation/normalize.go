// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package aggregation

import (
	"math"
	"strconv"
	"strings"
)

// Aggregate columns come back as int64, float64, text or NULL depending on
// the driver and the function (PostgreSQL AVG over integers is numeric,
// which pgx hands over as text). These helpers fold all of them to numbers.

// normalizeCount returns v as an integer count; anything unparseable is 0.
func normalizeCount(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(math.Round(n))
	case float32:
		return int64(math.Round(float64(n)))
	case bool:
		if n {
			return 1
		}
		return 0
	case []byte:
		return normalizeCount(string(n))
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(math.Round(f))
		}
		return 0
	default:
		return 0
	}
}

// normalizeAverage returns v as a float, or nil when it is NULL or unparseable.
func normalizeAverage(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case int:
		f = float64(n)
	case []byte:
		return normalizeAverage(string(n))
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// roundSeconds rounds an average duration to whole seconds; nil is 0.
func roundSeconds(avg *float64) float64 {
	if avg == nil {
		return 0
	}
	return math.Round(*avg)
}

// round2 rounds to two decimal places.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// bounceRate is the share of single-page sessions as a percentage with two
// decimals. No sessions is a 0% bounce rate.
func bounceRate(bounced, total int64) float64 {
	if total <= 0 {
		return 0
	}
	if bounced < 0 {
		bounced = 0
	}
	if bounced > total {
		bounced = total
	}
	return round2(float64(bounced) / float64(total) * 100)
}
