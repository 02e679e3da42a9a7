// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func remoteAddr(r *http.Request) string { return r.RemoteAddr }

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, 2, remoteAddr, nil)
	handler := rl.Middleware(okHandler)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/track", nil)
		req.RemoteAddr = "192.168.1.1"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("request %d: expected status %d, got %d", i, http.StatusOK, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/track", nil)
	req.RemoteAddr = "192.168.1.1"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status %d, got %d", http.StatusTooManyRequests, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRateLimiter_DifferentClients(t *testing.T) {
	rl := NewRateLimiter(1, 1, remoteAddr, nil)
	handler := rl.Middleware(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/track", nil)
	req.RemoteAddr = "192.168.1.1"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/api/track", nil)
	req.RemoteAddr = "192.168.1.2"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("second client: expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestLimiterCache_ResetsWhenFull(t *testing.T) {
	lc := newLimiterCache[int](1, 1)
	for i := 0; i < maxTrackedClients; i++ {
		lc.get(i)
	}
	if got := lc.size(); got != maxTrackedClients {
		t.Fatalf("size = %d, want %d", got, maxTrackedClients)
	}

	lc.get(-1)
	if got := lc.size(); got != 1 {
		t.Errorf("size after overflow = %d, want 1", got)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://example.com/"})(okHandler)

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantAllow  string
	}{
		{"allowed origin", http.MethodPost, "https://example.com", false, http.StatusOK, "https://example.com"},
		{"other origin", http.MethodPost, "https://evil.test", false, http.StatusOK, ""},
		{"no origin", http.MethodGet, "", false, http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://example.com", true, http.StatusNoContent, "https://example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/track", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestCORS_Wildcard(t *testing.T) {
	handler := CORS([]string{"*"})(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/track", nil)
	req.Header.Set("Origin", "https://anywhere.test")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://anywhere.test" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
