// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/csrf"
	"github.com/tomtom215/edgeguard/internal/identity"
	"github.com/tomtom215/edgeguard/internal/ratelimit"
	"github.com/tomtom215/edgeguard/internal/sweep"
)

type recordedEvent struct {
	Type  audit.EventType
	Input audit.EventInput
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (a *recordingAuditor) LogEvent(_ context.Context, t audit.EventType, in audit.EventInput) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, recordedEvent{Type: t, Input: in})
	return strconv.Itoa(len(a.events))
}

func (a *recordingAuditor) ofType(t audit.EventType) []recordedEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []recordedEvent
	for _, e := range a.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type fixture struct {
	gw      *Gateway
	auditor *recordingAuditor
}

func newFixture(t *testing.T, limitStore ratelimit.Store, origins ...string) *fixture {
	t.Helper()
	if limitStore == nil {
		limitStore = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.New(limitStore, ratelimit.WithClock(fixedClock), ratelimit.WithSweepTrigger(sweep.Never()))
	guard, err := csrf.New(csrf.NewMemoryStore(), csrf.Config{TTL: time.Hour, AllowedOrigins: origins},
		csrf.WithClock(fixedClock), csrf.WithSweepTrigger(sweep.Never()))
	if err != nil {
		t.Fatalf("csrf.New() error = %v", err)
	}
	resolver, err := identity.NewResolver(identity.Config{})
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	a := &recordingAuditor{}
	return &fixture{
		gw:      New(limiter, guard, resolver, WithAuditor(a), WithClock(fixedClock)),
		auditor: a,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func csrfCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrf.CookieName {
			return c
		}
	}
	t.Fatalf("response has no %s cookie", csrf.CookieName)
	return nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

// Five requests per minute: remaining counts down 4..0 and the sixth is
// rejected with Retry-After.
func TestProtect_RateLimitScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	h := f.gw.MustProtect("status", ratelimit.Rule{MaxRequests: 5, Window: time.Minute})(okHandler())

	for i, want := range []string{"4", "3", "2", "1", "0"} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/security/status", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
		if got := rec.Header().Get(HeaderRemaining); got != want {
			t.Errorf("request %d %s = %s, want %s", i+1, HeaderRemaining, got, want)
		}
		if got := rec.Header().Get(HeaderLimit); got != "5" {
			t.Errorf("request %d %s = %s, want 5", i+1, HeaderLimit, got)
		}
		if got := rec.Header().Get(HeaderReset); got != strconv.FormatInt(testNow.Add(time.Minute).Unix(), 10) {
			t.Errorf("request %d %s = %s", i+1, HeaderReset, got)
		}
	}

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/security/status", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("6th request status = %d, want 429", rec.Code)
	}
	retry, err := strconv.Atoi(rec.Header().Get(HeaderRetryAfter))
	if err != nil || retry <= 0 {
		t.Errorf("Retry-After = %q, want positive integer", rec.Header().Get(HeaderRetryAfter))
	}
	if retry != 60 {
		t.Errorf("Retry-After = %d, want 60", retry)
	}
	if got := rec.Header().Get(HeaderRemaining); got != "0" {
		t.Errorf("429 %s = %s, want 0", HeaderRemaining, got)
	}
	if body := decodeError(t, rec); body.Error != CodeRateLimited || body.Message == "" {
		t.Errorf("429 body = %+v", body)
	}

	events := f.auditor.ofType(audit.EventRateLimitExceeded)
	if len(events) != 1 {
		t.Fatalf("RATE_LIMIT_EXCEEDED events = %d, want 1", len(events))
	}
	if events[0].Input.RiskLevel != audit.RiskMedium || events[0].Input.IPAddress != "192.0.2.1" {
		t.Errorf("rate limit event = %+v", events[0].Input)
	}
	if got := len(f.auditor.ofType(audit.EventAPIRequest)); got != 5 {
		t.Errorf("API_REQUEST events = %d, want 5", got)
	}
}

// GET hands out a token cookie; echoing it in the header lets the POST
// through, omitting the header gets 403.
func TestProtect_CSRFScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	h := f.gw.MustProtect("audit_ingest", ratelimit.Rule{MaxRequests: 100, Window: time.Minute})(okHandler())

	get := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/security/audit", nil))
	if get.Code != http.StatusOK {
		t.Fatalf("GET status = %d", get.Code)
	}
	cookie := csrfCookie(t, get)
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteStrictMode {
		t.Errorf("cookie flags = %+v", cookie)
	}
	if got := get.Header().Get(csrf.HeaderName); got != cookie.Value {
		t.Errorf("%s header = %q, want cookie value", csrf.HeaderName, got)
	}

	post := httptest.NewRequest(http.MethodPost, "/api/v1/security/audit", nil)
	post.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: cookie.Value})
	post.Header.Set(csrf.HeaderName, cookie.Value)
	if rec := serve(h, post); rec.Code != http.StatusOK {
		t.Errorf("POST with header status = %d, want 200", rec.Code)
	}

	bare := httptest.NewRequest(http.MethodPost, "/api/v1/security/audit", nil)
	bare.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: cookie.Value})
	rec := serve(h, bare)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("POST without header status = %d, want 403", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error != CodeCSRFMissing || body.Message == "" {
		t.Errorf("403 body = %+v", body)
	}
	if rec.Header().Get(HeaderLimit) == "" {
		t.Error("403 response is missing rate limit headers")
	}

	events := f.auditor.ofType(audit.EventCSRFViolation)
	if len(events) != 1 {
		t.Fatalf("CSRF_VIOLATION events = %d, want 1", len(events))
	}
	if events[0].Input.RiskLevel != audit.RiskHigh {
		t.Errorf("CSRF event risk = %s, want high", events[0].Input.RiskLevel)
	}
	if got := events[0].Input.Details["reason"]; got != audit.StringValue(string(csrf.ReasonMissing)) {
		t.Errorf("reason detail = %v", got)
	}
}

func TestProtect_CSRFMismatchAndUnknown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	h := f.gw.MustProtect("scan", ratelimit.Rule{MaxRequests: 100, Window: time.Minute})(okHandler())

	tests := []struct {
		name, header, cookie string
	}{
		{"mismatch", "aaa", "bbb"},
		{"unknown token", "forged", "forged"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodDelete, "/x", nil)
		r.Header.Set(csrf.HeaderName, tt.header)
		r.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: tt.cookie})
		rec := serve(h, r)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: status = %d, want 403", tt.name, rec.Code)
			continue
		}
		if body := decodeError(t, rec); body.Error != CodeCSRFInvalid {
			t.Errorf("%s: error = %s, want %s", tt.name, body.Error, CodeCSRFInvalid)
		}
	}
}

func TestProtect_SafeMethodKeepsLiveToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	h := f.gw.MustProtect("status", ratelimit.Rule{MaxRequests: 100, Window: time.Minute})(okHandler())

	cookie := csrfCookie(t, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)))
	r := httptest.NewRequest(http.MethodHead, "/", nil)
	r.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: cookie.Value})
	rec := serve(h, r)
	if len(rec.Result().Cookies()) != 0 {
		t.Errorf("live token was reissued: %v", rec.Result().Cookies())
	}
}

func TestProtect_OriginMismatchIsAdvisory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, "https://example.com")
	h := f.gw.MustProtect("scan", ratelimit.Rule{MaxRequests: 100, Window: time.Minute})(okHandler())
	cookie := csrfCookie(t, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)))

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Origin", "https://evil.example")
	r.Header.Set(csrf.HeaderName, cookie.Value)
	r.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: cookie.Value})
	if rec := serve(h, r); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (token is valid)", rec.Code)
	}
	events := f.auditor.ofType(audit.EventOriginMismatch)
	if len(events) != 1 {
		t.Fatalf("ORIGIN_MISMATCH events = %d, want 1", len(events))
	}
	if got := events[0].Input.Details["origin"]; got != audit.StringValue("https://evil.example") {
		t.Errorf("origin detail = %v", got)
	}
}

func TestProtect_RequestAuditOutcome(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	failing := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	h := f.gw.MustProtect("status", ratelimit.Rule{MaxRequests: 10, Window: time.Minute})(failing)
	serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/security/status", nil))

	events := f.auditor.ofType(audit.EventAPIRequest)
	if len(events) != 1 {
		t.Fatalf("API_REQUEST events = %d, want 1", len(events))
	}
	in := events[0].Input
	if in.Outcome != audit.OutcomeFailure {
		t.Errorf("Outcome = %s, want failure", in.Outcome)
	}
	if got := in.Details["status"]; got != audit.NumberValue(500) {
		t.Errorf("status detail = %v, want 500", got)
	}
}

func TestProtect_RequestAuditDisabled(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithSweepTrigger(sweep.Never()))
	resolver, _ := identity.NewResolver(identity.Config{})
	a := &recordingAuditor{}
	gw := New(limiter, nil, resolver, WithAuditor(a), WithRequestAudit(false))
	h := gw.MustProtect("status", ratelimit.Rule{MaxRequests: 10, Window: time.Minute})(okHandler())

	// nil guard: POST passes without a token.
	if rec := serve(h, httptest.NewRequest(http.MethodPost, "/", nil)); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(a.events) != 0 {
		t.Errorf("events = %d, want 0", len(a.events))
	}
}

func TestProtect_RoutesDoNotShareLimits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rule := ratelimit.Rule{MaxRequests: 1, Window: time.Minute}
	a := f.gw.MustProtect("a", rule)(okHandler())
	b := f.gw.MustProtect("b", rule)(okHandler())

	if rec := serve(a, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusOK {
		t.Fatalf("a status = %d", rec.Code)
	}
	if rec := serve(b, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusOK {
		t.Errorf("b status = %d, want 200", rec.Code)
	}
	if rec := serve(a, httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second a status = %d, want 429", rec.Code)
	}
}

func TestProtect_ClientsDoNotShareLimits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	h := f.gw.MustProtect("a", ratelimit.Rule{MaxRequests: 1, Window: time.Minute})(okHandler())

	r1 := httptest.NewRequest(http.MethodGet, "/", nil)
	r1.RemoteAddr = "198.51.100.1:5000"
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.RemoteAddr = "198.51.100.2:5000"
	if rec := serve(h, r1); rec.Code != http.StatusOK {
		t.Fatalf("client 1 status = %d", rec.Code)
	}
	if rec := serve(h, r2); rec.Code != http.StatusOK {
		t.Errorf("client 2 status = %d, want 200", rec.Code)
	}
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration, time.Time) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}
func (failingStore) Sweep(context.Context, time.Time) (int, error) { return 0, nil }
func (failingStore) Name() string                                  { return "failing" }

func TestProtect_StoreFailureAllows(t *testing.T) {
	t.Parallel()

	f := newFixture(t, failingStore{})
	h := f.gw.MustProtect("status", ratelimit.Rule{MaxRequests: 3, Window: time.Minute})(okHandler())
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get(HeaderRemaining); got != "3" {
		t.Errorf("%s = %s, want 3", HeaderRemaining, got)
	}
}

func TestNewRoute_InvalidRule(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	tests := []struct {
		name  string
		route string
		rule  ratelimit.Rule
	}{
		{"zero max", "a", ratelimit.Rule{MaxRequests: 0, Window: time.Minute}},
		{"zero window", "a", ratelimit.Rule{MaxRequests: 1}},
		{"empty name", "", ratelimit.Rule{MaxRequests: 1, Window: time.Minute}},
	}
	for _, tt := range tests {
		if _, err := f.gw.NewRoute(tt.route, tt.rule); !errors.Is(err, ratelimit.ErrInvalidRule) {
			t.Errorf("%s: NewRoute() error = %v, want ErrInvalidRule", tt.name, err)
		}
		if _, err := f.gw.Protect(tt.route, tt.rule); err == nil {
			t.Errorf("%s: Protect() error = nil", tt.name)
		}
	}

	defer func() {
		if recover() == nil {
			t.Error("MustProtect() did not panic on invalid rule")
		}
	}()
	f.gw.MustProtect("a", ratelimit.Rule{})
}

func TestRetryAfterSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{100 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.in); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
