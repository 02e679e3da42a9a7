// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavor behind a Querier.
type Dialect string

// Supported dialects. The values match the config driver names.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) gooseDialect() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// Rebind rewrites ? placeholders into the dialect's form. Question marks
// inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// HourOfDay returns an integer expression for the hour of day (0-23) of col
// shifted by offsetSeconds from UTC.
func (d Dialect) HourOfDay(col string, offsetSeconds int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("CAST(EXTRACT(HOUR FROM %s + INTERVAL '%d seconds') AS INTEGER)", col, offsetSeconds)
	}
	return fmt.Sprintf("CAST(strftime('%%H', %s, '%+d seconds') AS INTEGER)", col, offsetSeconds)
}

// Date returns a YYYY-MM-DD text expression for col shifted by offsetSeconds.
func (d Dialect) Date(col string, offsetSeconds int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("to_char(%s + INTERVAL '%d seconds', 'YYYY-MM-DD')", col, offsetSeconds)
	}
	return fmt.Sprintf("date(%s, '%+d seconds')", col, offsetSeconds)
}

// SecondsBetween returns an integer expression for whole seconds from start to end.
func (d Dialect) SecondsBetween(start, end string) string {
	if d == DialectPostgres {
		return fmt.Sprintf("CAST(EXTRACT(EPOCH FROM (%s - %s)) AS INTEGER)", end, start)
	}
	return fmt.Sprintf("CAST(ROUND((julianday(%s) - julianday(%s)) * 86400) AS INTEGER)", end, start)
}
