// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/isaacson-f/personal-website-sub000/internal/store"
)

// ErrInvalidEvent is returned for beacons that fail validation.
var ErrInvalidEvent = errors.New("invalid event")

const (
	maxURLLength        = 2048
	maxIDLength         = 64
	maxPropertiesBytes  = 4096
	maxPropertiesDepth  = 4
	maxPropertyKeyBytes = 128
)

// Beacon is one event as sent by the browser script.
type Beacon struct {
	SessionID  string         `json:"session_id"`
	VisitorID  string         `json:"visitor_id"`
	EventType  string         `json:"event_type"`
	URL        string         `json:"url"`
	Referrer   string         `json:"referrer"`
	Properties map[string]any `json:"properties"`
}

var (
	idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	// Beacons carry no markup; everything is reduced to text.
	textPolicy = bluemonday.StrictPolicy()
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEvent, fmt.Sprintf(format, args...))
}

// sanitizeText strips markup and surrounding whitespace. StrictPolicy escapes
// the remaining text, which is undone so URLs keep their ampersands.
func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// normalize validates b and returns a sanitized copy.
func (b Beacon) normalize() (Beacon, string, error) {
	out := Beacon{
		SessionID: strings.TrimSpace(b.SessionID),
		VisitorID: strings.TrimSpace(b.VisitorID),
		EventType: strings.TrimSpace(b.EventType),
	}

	if !store.IsValidEventType(out.EventType) {
		return Beacon{}, "", invalid("unknown event type %q", b.EventType)
	}
	if err := checkID("session_id", out.SessionID); err != nil {
		return Beacon{}, "", err
	}
	if err := checkID("visitor_id", out.VisitorID); err != nil {
		return Beacon{}, "", err
	}

	u, err := cleanURL(b.URL, true)
	if err != nil {
		return Beacon{}, "", invalid("url: %v", err)
	}
	out.URL = u

	ref, err := cleanURL(b.Referrer, false)
	if err != nil {
		// A broken referrer is not worth rejecting the event for.
		ref = ""
	}
	out.Referrer = ref

	props, err := cleanProperties(b.Properties)
	if err != nil {
		return Beacon{}, "", err
	}
	return out, props, nil
}

func checkID(field, id string) error {
	if id == "" {
		return nil
	}
	if len(id) > maxIDLength || !idPattern.MatchString(id) {
		return invalid("%s must be at most %d letters, digits, '-' or '_'", field, maxIDLength)
	}
	return nil
}

// cleanURL accepts absolute http(s) URLs and site-relative paths.
func cleanURL(raw string, required bool) (string, error) {
	s := sanitizeText(raw)
	if s == "" {
		if required {
			return "", errors.New("required")
		}
		return "", nil
	}
	if len(s) > maxURLLength {
		return "", fmt.Errorf("longer than %d bytes", maxURLLength)
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", err
	}
	switch {
	case u.Scheme == "" && u.Host == "" && strings.HasPrefix(u.Path, "/"):
	case (u.Scheme == "http" || u.Scheme == "https") && u.Host != "":
	default:
		return "", fmt.Errorf("unsupported url %q", s)
	}
	u.Fragment = ""
	return u.String(), nil
}

// cleanProperties sanitizes string values recursively and returns the
// properties as a JSON object.
func cleanProperties(props map[string]any) (string, error) {
	if len(props) == 0 {
		return "{}", nil
	}
	cleaned, err := cleanValue(props, 0)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return "", invalid("properties: %v", err)
	}
	if len(data) > maxPropertiesBytes {
		return "", invalid("properties larger than %d bytes", maxPropertiesBytes)
	}
	return string(data), nil
}

func cleanValue(v any, depth int) (any, error) {
	if depth > maxPropertiesDepth {
		return nil, invalid("properties nested deeper than %d levels", maxPropertiesDepth)
	}
	switch val := v.(type) {
	case string:
		return sanitizeText(val), nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			key := sanitizeText(k)
			if key == "" || len(key) > maxPropertyKeyBytes {
				continue
			}
			c, err := cleanValue(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[key] = c
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			c, err := cleanValue(item, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	default:
		// Numbers, booleans and null pass through.
		return val, nil
	}
}
