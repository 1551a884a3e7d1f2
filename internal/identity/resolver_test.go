// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestResolver(t *testing.T, cfg Config) *Resolver {
	t.Helper()
	r, err := NewResolver(cfg)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	return r
}

func TestResolve_ClientIP(t *testing.T) {
	t.Parallel()

	rs := newTestResolver(t, Config{TrustedProxies: []string{"10.0.0.0/8", "127.0.0.1"}})

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{"direct client ignores headers", "203.0.113.5:4000", "1.2.3.4", "5.6.7.8", "203.0.113.5"},
		{"trusted proxy uses xff", "10.0.0.2:4000", "198.51.100.7", "", "198.51.100.7"},
		{"right-most untrusted hop wins", "10.0.0.2:4000", "6.6.6.6, 198.51.100.7, 10.0.0.9", "", "198.51.100.7"},
		{"x-real-ip fallback", "127.0.0.1:4000", "", "198.51.100.8", "198.51.100.8"},
		{"garbage xff falls back to peer", "10.0.0.2:4000", "not-an-ip", "", "10.0.0.2"},
		{"ipv6 peer", "[2001:db8::1]:443", "", "", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := rs.Resolve(req).IP; got != tt.want {
				t.Errorf("Resolve().IP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_Assertion(t *testing.T) {
	t.Parallel()

	rs := newTestResolver(t, Config{AssertionHeader: "X-Edge-Identity", AssertionSecret: testSecret})

	token, err := SignAssertion([]byte(testSecret), "user-42", []string{"admin"}, time.Minute)
	if err != nil {
		t.Fatalf("SignAssertion() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Edge-Identity", token)
	id := rs.Resolve(req)

	if id.UserID != "user-42" {
		t.Errorf("UserID = %q, want user-42", id.UserID)
	}
	if !id.HasRole("admin") {
		t.Errorf("Roles = %v, want admin", id.Roles)
	}
	if id.Key() != "user:user-42" {
		t.Errorf("Key() = %q, want user:user-42", id.Key())
	}
}

func TestResolve_RejectedAssertionFallsBackToIP(t *testing.T) {
	t.Parallel()

	rs := newTestResolver(t, Config{AssertionHeader: "X-Edge-Identity", AssertionSecret: testSecret})

	forged, err := SignAssertion([]byte(strings.Repeat("x", 32)), "admin", []string{"admin"}, time.Minute)
	if err != nil {
		t.Fatalf("SignAssertion() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	req.Header.Set("X-Edge-Identity", forged)
	id := rs.Resolve(req)

	if !id.AssertionRejected {
		t.Error("AssertionRejected = false, want true")
	}
	if id.UserID != "" {
		t.Errorf("UserID = %q, want empty", id.UserID)
	}
	if id.Key() != "ip:192.0.2.10" {
		t.Errorf("Key() = %q, want ip:192.0.2.10", id.Key())
	}
}

func TestAssertionVerifier_Expired(t *testing.T) {
	t.Parallel()

	token, err := SignAssertion([]byte(testSecret), "u", nil, -time.Hour)
	if err != nil {
		t.Fatalf("SignAssertion() error = %v", err)
	}
	_, err = NewAssertionVerifier([]byte(testSecret)).Verify(token)
	if !errors.Is(err, ErrInvalidAssertion) {
		t.Errorf("Verify() error = %v, want ErrInvalidAssertion", err)
	}
}

func TestNewResolver_Errors(t *testing.T) {
	t.Parallel()

	if _, err := NewResolver(Config{TrustedProxies: []string{"nope"}}); err == nil {
		t.Error("NewResolver(bad proxy) = nil error, want error")
	}
	if _, err := NewResolver(Config{AssertionSecret: testSecret}); err == nil {
		t.Error("NewResolver(secret without header) = nil error, want error")
	}
}

func TestMiddleware_StoresIdentity(t *testing.T) {
	t.Parallel()

	rs := newTestResolver(t, Config{})
	var got Identity
	h := rs.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got.IP != "192.0.2.1" {
		t.Errorf("identity IP = %q, want 192.0.2.1", got.IP)
	}
}
