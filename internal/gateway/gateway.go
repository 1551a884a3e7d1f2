// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package gateway composes the enforcement chain that wraps every protected
// route:
//
//	identity -> rate limit -> CSRF (state-changing methods) -> handler -> audit
//
// Every response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset. A denied request gets 429 with Retry-After and a
// RATE_LIMIT_EXCEEDED audit event. A state-changing request without a
// matching live CSRF token gets 403 and a CSRF_VIOLATION event. Safe
// requests without a live token are issued one.
//
// Audit logging is best effort: the Auditor must not block, and nothing it
// does can change the response.
package gateway

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/csrf"
	"github.com/tomtom215/edgeguard/internal/identity"
	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/metrics"
	"github.com/tomtom215/edgeguard/internal/ratelimit"
)

// Response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Error codes written in {error, message} bodies.
const (
	CodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	CodeCSRFMissing    = "CSRF_TOKEN_MISSING"
	CodeCSRFInvalid    = "CSRF_TOKEN_INVALID"
	csrfHint           = "Fetch a token from GET /api/v1/csrf-token and send it back in the X-CSRF-Token header with the csrf-token cookie."
	rateLimitedMessage = "Too many requests. Retry after the time given in the Retry-After header."
)

// Auditor receives policy and request events. *audit.Logger satisfies it.
type Auditor interface {
	LogEvent(ctx context.Context, eventType audit.EventType, in audit.EventInput) string
}

type nopAuditor struct{}

func (nopAuditor) LogEvent(context.Context, audit.EventType, audit.EventInput) string { return "" }

// Gateway holds the shared enforcement components.
type Gateway struct {
	limiter      *ratelimit.Limiter
	guard        *csrf.Guard
	resolver     *identity.Resolver
	auditor      Auditor
	auditRequest bool
	now          func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithAuditor sets where policy and request events go.
func WithAuditor(a Auditor) Option {
	return func(g *Gateway) {
		if a != nil {
			g.auditor = a
		}
	}
}

// WithRequestAudit toggles the API_REQUEST event written after each
// handled request. It is on by default.
func WithRequestAudit(enabled bool) Option {
	return func(g *Gateway) { g.auditRequest = enabled }
}

// WithClock overrides time.Now for header computation.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New returns a Gateway. guard may be nil to disable CSRF enforcement.
func New(limiter *ratelimit.Limiter, guard *csrf.Guard, resolver *identity.Resolver, opts ...Option) *Gateway {
	g := &Gateway{
		limiter:      limiter,
		guard:        guard,
		resolver:     resolver,
		auditor:      nopAuditor{},
		auditRequest: true,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Route is one protected route with its own limit.
type Route struct {
	gw   *Gateway
	name string
	rule ratelimit.Rule
}

// NewRoute validates rule and binds it to name. Limits are never shared
// between routes, so name must be unique per wrapped endpoint.
func (g *Gateway) NewRoute(name string, rule ratelimit.Rule) (*Route, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: route name is required", ratelimit.ErrInvalidRule)
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("route %s: %w", name, err)
	}
	return &Route{gw: g, name: name, rule: rule}, nil
}

// Protect returns chi-compatible middleware for name and rule. An invalid
// rule is reported here, at route setup, never per request.
func (g *Gateway) Protect(name string, rule ratelimit.Rule) (func(http.Handler) http.Handler, error) {
	rt, err := g.NewRoute(name, rule)
	if err != nil {
		return nil, err
	}
	return rt.Handler, nil
}

// MustProtect is Protect that panics on an invalid rule.
func (g *Gateway) MustProtect(name string, rule ratelimit.Rule) func(http.Handler) http.Handler {
	mw, err := g.Protect(name, rule)
	if err != nil {
		panic(err)
	}
	return mw
}

// Name returns the route key used for rate limiting.
func (rt *Route) Name() string { return rt.name }

// Rule returns the route's limit.
func (rt *Route) Rule() ratelimit.Rule { return rt.rule }

// Handler wraps next with the enforcement chain.
func (rt *Route) Handler(next http.Handler) http.Handler {
	g := rt.gw
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := g.now()
		id := g.resolver.FromRequest(r)
		ctx := identity.WithIdentity(r.Context(), id)
		ctx = logging.ContextWithClient(ctx, id.Key())
		r = r.WithContext(ctx)

		if !rt.rateLimit(w, r, id) {
			return
		}
		if g.guard != nil && !rt.csrf(w, r, id) {
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if g.auditRequest {
			rt.auditRequest(r, id, rec.status, g.now().Sub(start))
		}
	})
}

// rateLimit sets the rate-limit headers and reports whether the request may
// proceed. A store failure lets the request through.
func (rt *Route) rateLimit(w http.ResponseWriter, r *http.Request, id identity.Identity) bool {
	g := rt.gw
	ctx := r.Context()

	d, err := g.limiter.Check(ctx, rt.name, id.Key(), rt.rule)
	if err != nil {
		metrics.RateLimitStoreErrors.Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("route", rt.name).Msg("Rate limit check failed, allowing request")
		setLimitHeaders(w, rt.rule.MaxRequests, rt.rule.MaxRequests, g.now().Add(rt.rule.Window))
		return true
	}

	setLimitHeaders(w, d.Limit, d.Remaining, d.ResetAt)
	if d.Allowed {
		return true
	}

	retry := retryAfterSeconds(d.RetryAfter)
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(retry))

	g.auditor.LogEvent(ctx, audit.EventRateLimitExceeded, audit.EventInput{
		RiskLevel: audit.RiskMedium,
		Source:    "gateway",
		IPAddress: id.IP,
		UserID:    id.UserID,
		Outcome:   audit.OutcomeFailure,
		Details: audit.Details{
			"route":      audit.StringValue(rt.name),
			"method":     audit.StringValue(r.Method),
			"path":       audit.StringValue(r.URL.Path),
			"limit":      audit.IntValue(d.Limit),
			"retryAfter": audit.IntValue(retry),
		},
		Tags: []string{"ratelimit", "policy"},
	})
	logging.Ctx(ctx).Info().Str("route", rt.name).Int("retry_after", retry).Msg("Rate limit exceeded")

	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, rateLimitedMessage)
	return false
}

// csrf enforces the double-submit token on state-changing methods and
// issues a token on safe ones. It reports whether the request may proceed.
func (rt *Route) csrf(w http.ResponseWriter, r *http.Request, id identity.Identity) bool {
	g := rt.gw
	ctx := r.Context()
	header, cookie := csrf.Tokens(r)

	if !csrf.IsStateChanging(r.Method) {
		if !g.guard.Live(ctx, cookie) {
			tok, err := g.guard.Issue(ctx)
			if err != nil {
				logging.Ctx(ctx).Error().Err(err).Msg("Failed to issue CSRF token")
				return true
			}
			g.guard.SetCookie(w, tok)
			w.Header().Set(csrf.HeaderName, tok.Value)
		}
		return true
	}

	origin := g.guard.CheckOrigin(r)
	if origin.Mismatch() {
		g.auditor.LogEvent(ctx, audit.EventOriginMismatch, audit.EventInput{
			RiskLevel: audit.RiskMedium,
			Source:    "gateway",
			IPAddress: id.IP,
			UserID:    id.UserID,
			Outcome:   audit.OutcomeWarning,
			Details: audit.Details{
				"route":  audit.StringValue(rt.name),
				"method": audit.StringValue(r.Method),
				"origin": audit.StringValue(origin.Origin),
			},
			Tags: []string{"csrf", "origin"},
		})
		logging.Ctx(ctx).Warn().Str("origin", logging.SanitizeValue(origin.Origin)).Str("route", rt.name).
			Msg("Request origin not in allow-list")
	}

	reason := g.guard.Check(ctx, header, cookie)
	if reason == csrf.ReasonOK {
		return true
	}

	details := audit.Details{
		"route":  audit.StringValue(rt.name),
		"method": audit.StringValue(r.Method),
		"path":   audit.StringValue(r.URL.Path),
		"reason": audit.StringValue(string(reason)),
	}
	if origin.Present {
		details["origin"] = audit.StringValue(origin.Origin)
	}
	g.auditor.LogEvent(ctx, audit.EventCSRFViolation, audit.EventInput{
		RiskLevel: audit.RiskHigh,
		Source:    "gateway",
		IPAddress: id.IP,
		UserID:    id.UserID,
		Outcome:   audit.OutcomeFailure,
		Details:   details,
		Tags:      []string{"csrf", "policy"},
	})
	logging.Ctx(ctx).Warn().Str("reason", string(reason)).Str("route", rt.name).Msg("CSRF verification failed")

	code, message := CodeCSRFInvalid, "CSRF token is invalid or expired. "+csrfHint
	if reason == csrf.ReasonMissing {
		code, message = CodeCSRFMissing, "CSRF token is missing. "+csrfHint
	}
	WriteError(w, http.StatusForbidden, code, message)
	return false
}

func (rt *Route) auditRequest(r *http.Request, id identity.Identity, status int, elapsed time.Duration) {
	outcome := audit.OutcomeSuccess
	if status >= http.StatusBadRequest {
		outcome = audit.OutcomeFailure
	}
	rt.gw.auditor.LogEvent(r.Context(), audit.EventAPIRequest, audit.EventInput{
		RiskLevel: audit.RiskLow,
		Source:    "gateway",
		IPAddress: id.IP,
		UserID:    id.UserID,
		Outcome:   outcome,
		Details: audit.Details{
			"route":      audit.StringValue(rt.name),
			"method":     audit.StringValue(r.Method),
			"path":       audit.StringValue(r.URL.Path),
			"status":     audit.IntValue(status),
			"durationMs": audit.IntValue(int(elapsed.Milliseconds())),
		},
	})
}

func setLimitHeaders(w http.ResponseWriter, limit, remaining int, resetAt time.Time) {
	h := w.Header()
	h.Set(HeaderLimit, strconv.Itoa(limit))
	h.Set(HeaderRemaining, strconv.Itoa(max(remaining, 0)))
	h.Set(HeaderReset, strconv.FormatInt(resetAt.Unix(), 10))
}

// retryAfterSeconds rounds up to whole seconds, never below 1.
func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if !rec.wroteHeader {
		rec.status = code
		rec.wroteHeader = true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.wroteHeader = true
	return rec.ResponseWriter.Write(b)
}

// Hijack supports websocket upgrades behind the gateway.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	rec.wroteHeader = true
	rec.status = http.StatusSwitchingProtocols
	return http.NewResponseController(rec.ResponseWriter).Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}
