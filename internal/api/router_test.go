// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/authz"
	"github.com/tomtom215/edgeguard/internal/config"
	"github.com/tomtom215/edgeguard/internal/csrf"
	"github.com/tomtom215/edgeguard/internal/gateway"
	"github.com/tomtom215/edgeguard/internal/identity"
	"github.com/tomtom215/edgeguard/internal/ratelimit"
	"github.com/tomtom215/edgeguard/internal/scanner"
	"github.com/tomtom215/edgeguard/internal/status"
	"github.com/tomtom215/edgeguard/internal/sweep"
)

type testEnv struct {
	handler http.Handler
	deps    Dependencies
	jobs    *scanner.JobRunner
}

type envOption func(*config.Config, *Dependencies)

func withReadiness(name string, check ReadinessCheck) envOption {
	return func(_ *config.Config, d *Dependencies) {
		if d.Readiness == nil {
			d.Readiness = map[string]ReadinessCheck{}
		}
		d.Readiness[name] = check
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.Security.GlobalRateLimit.Requests = 0
	cfg.Scanner.SyncWait = 5 * time.Second

	logger := audit.NewLogger(audit.NewMemoryStore(), audit.Config{})
	t.Cleanup(func() { _ = logger.Close() })

	guard, err := csrf.New(csrf.NewMemoryStore(), csrf.Config{TTL: time.Hour}, csrf.WithSweepTrigger(sweep.Never()))
	if err != nil {
		t.Fatal(err)
	}
	resolver, err := identity.NewResolver(identity.Config{})
	if err != nil {
		t.Fatal(err)
	}
	registry, err := scanner.NewRegistry(scanner.ModeDedup)
	if err != nil {
		t.Fatal(err)
	}
	sc := scanner.New(registry, scanner.Config{RequestsPerSecond: 0, QuickTimeout: 5 * time.Second})

	deps := Dependencies{
		Config:   cfg,
		Resolver: resolver,
		Guard:    guard,
		Audit:    logger,
		Scanner:  sc,
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	jobs := scanner.NewJobRunner(sc, 1, 4, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = jobs.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithSweepTrigger(sweep.Never()))
	deps.Gateway = gateway.New(limiter, guard, resolver, gateway.WithAuditor(logger))
	deps.Jobs = jobs

	rt, err := NewRouter(deps)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return &testEnv{handler: rt.Handler(), deps: deps, jobs: jobs}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if req.RemoteAddr == "" || req.RemoteAddr == "192.0.2.1:1234" {
		req.RemoteAddr = "203.0.113.10:40000"
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// csrfToken fetches a token and returns it with the matching cookie.
func (e *testEnv) csrfToken(t *testing.T) (string, *http.Cookie) {
	t.Helper()
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/csrf-token", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf-token status = %d, body %s", rec.Code, rec.Body)
	}
	var tok csrf.Token
	decode(t, rec, &tok)
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrf.CookieName && c.Value == tok.Value {
			return tok.Value, c
		}
	}
	t.Fatalf("no %s cookie matching the returned token", csrf.CookieName)
	return "", nil
}

func (e *testEnv) send(t *testing.T, method, path string, body interface{}, withCSRF bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if withCSRF {
		token, cookie := e.csrfToken(t)
		req.Header.Set(csrf.HeaderName, token)
		req.AddCookie(cookie)
	}
	return e.do(t, req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body gateway.ErrorBody
	decode(t, rec, &body)
	return body.Error
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body HealthResponse
	decode(t, rec, &body)
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReady(t *testing.T) {
	env := newTestEnv(t,
		withReadiness("audit", func(context.Context) error { return nil }),
		withReadiness("redis", func(context.Context) error { return errors.New("connection refused") }),
	)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body ReadyResponse
	decode(t, rec, &body)
	if body.Ready || body.Checks["audit"] != "ok" || body.Checks["redis"] != "unavailable" {
		t.Errorf("body = %+v", body)
	}
	if strings.Contains(rec.Body.String(), "refused") {
		t.Error("readiness leaked the underlying error")
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != CodeNotFound {
		t.Errorf("got %d %s", rec.Code, rec.Body)
	}
}

func TestCSRFToken_IssuesCookieAndHeader(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/csrf-token", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var tok csrf.Token
	decode(t, rec, &tok)
	if tok.Value == "" || rec.Header().Get(csrf.HeaderName) != tok.Value {
		t.Errorf("token %q, header %q", tok.Value, rec.Header().Get(csrf.HeaderName))
	}
	if rec.Header().Get(gateway.HeaderLimit) != "30" {
		t.Errorf("%s = %q, want 30", gateway.HeaderLimit, rec.Header().Get(gateway.HeaderLimit))
	}
}

func TestCSRFToken_RotatesLiveCookie(t *testing.T) {
	env := newTestEnv(t)
	first, cookie := env.csrfToken(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/csrf-token", nil)
	req.AddCookie(cookie)
	rec := env.do(t, req)
	var second csrf.Token
	decode(t, rec, &second)
	if second.Value == first {
		t.Fatal("token was not rotated")
	}
	if env.deps.Guard.Live(context.Background(), first) {
		t.Error("previous token still live after rotation")
	}
}

func TestRateLimit_PerRoute(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, _ *Dependencies) {
		cfg.RateLimit.Routes.Status = config.RouteRule{MaxRequests: 2, Window: time.Minute}
	})

	for i := 0; i < 2; i++ {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/security/status", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/security/status", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get(gateway.HeaderRetryAfter) == "" {
		t.Error("missing Retry-After")
	}
	if errorCode(t, rec) != gateway.CodeRateLimited {
		t.Errorf("error = %q", errorCode(t, rec))
	}

	// Other routes keep their own budget.
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/security/vulnerabilities", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("vulnerabilities status = %d, want 200", rec.Code)
	}
}

func TestNewRouter_RejectsInvalidRule(t *testing.T) {
	cfg := config.Defaults()
	cfg.RateLimit.Routes.Scan = config.RouteRule{MaxRequests: 0, Window: time.Minute}

	env := newTestEnv(t)
	deps := env.deps
	deps.Config = cfg
	if _, err := NewRouter(deps); !errors.Is(err, ratelimit.ErrInvalidRule) {
		t.Errorf("err = %v, want ErrInvalidRule", err)
	}
}

func TestStatus_EmptySystemIsSecure(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/security/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap status.Snapshot
	decode(t, rec, &snap)
	if snap.SecurityScore != status.MaxScore || snap.Status != status.LevelSecure {
		t.Errorf("score %d status %s, want 100 secure", snap.SecurityScore, snap.Status)
	}
	if len(snap.Errors) != 0 {
		t.Errorf("errors = %+v", snap.Errors)
	}
}

func TestAuthz_DeniesViewerScan(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, d *Dependencies) {
		enf, err := authz.NewEnforcer(authz.DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(enf.Close)
		d.Authz = authz.NewMiddleware(enf, d.Audit)
	})

	rec := env.send(t, http.MethodPost, "/api/v1/security/scan",
		ScanRequest{ScanType: ScanModeQuick, Targets: []string{"http://example.invalid"}}, true)
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != authz.CodeForbidden {
		t.Errorf("got %d %s, want 403 FORBIDDEN", rec.Code, rec.Body)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/security/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("viewer status read = %d, want 200", rec.Code)
	}
}
