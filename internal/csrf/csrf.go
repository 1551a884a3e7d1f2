// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package csrf implements double-submit CSRF tokens.
//
// A token is 32 random bytes, base64url encoded. The client receives it in
// the csrf-token cookie (HttpOnly, SameSite=Strict) and in the response body
// of the token endpoint, and must echo it in the X-CSRF-Token header on
// state-changing requests. The server keeps only a blake2b-256 digest of
// each live token, so a dump of the store cannot be replayed.
//
// Lifecycle: ISSUED -> VERIFIED (any number of times) -> EXPIRED or
// INVALIDATED. Expired entries are removed lazily when verified and by the
// shared opportunistic sweep.
//
// Origin checking is advisory. CheckOrigin reports whether Origin/Referer
// matches the allow-list; the accept/reject decision always rests on the
// token.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/metrics"
	"github.com/tomtom215/edgeguard/internal/sweep"
)

const (
	// CookieName is the double-submit cookie.
	CookieName = "csrf-token"
	// HeaderName carries the echoed token.
	HeaderName = "X-CSRF-Token"

	tokenBytes = 32
)

// ErrInvalidTTL is returned by New for a non-positive TTL.
var ErrInvalidTTL = errors.New("csrf ttl must be positive")

// Token is an issued token. Value is the only copy of the plaintext.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Reason classifies a verification outcome.
type Reason string

const (
	ReasonOK         Reason = "ok"
	ReasonMissing    Reason = "missing"
	ReasonMismatch   Reason = "mismatch"
	ReasonUnknown    Reason = "unknown"
	ReasonExpired    Reason = "expired"
	ReasonStoreError Reason = "store_error"
)

// Store keeps digests of live tokens.
type Store interface {
	Save(ctx context.Context, digest string, expiresAt time.Time) error
	// Lookup returns the stored expiry for digest; found is false when absent.
	Lookup(ctx context.Context, digest string) (expiresAt time.Time, found bool, err error)
	Delete(ctx context.Context, digest string) error
	// Sweep removes entries that expired at or before now.
	Sweep(ctx context.Context, now time.Time) (int, error)
	Name() string
}

// Config holds guard settings.
type Config struct {
	TTL            time.Duration
	CookieSecure   bool
	AllowedOrigins []string
}

// Guard issues and verifies tokens.
type Guard struct {
	store        Store
	ttl          time.Duration
	cookieSecure bool
	origins      map[string]struct{}
	anyOrigin    bool
	trigger      *sweep.Trigger
	now          func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithSweepTrigger overrides the default 1% cleanup trigger.
func WithSweepTrigger(t *sweep.Trigger) Option {
	return func(g *Guard) { g.trigger = t }
}

// New returns a Guard over store.
func New(store Store, cfg Config, opts ...Option) (*Guard, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTTL, cfg.TTL)
	}
	g := &Guard{
		store:        store,
		ttl:          cfg.TTL,
		cookieSecure: cfg.CookieSecure,
		origins:      make(map[string]struct{}, len(cfg.AllowedOrigins)),
		trigger:      sweep.NewTrigger(sweep.DefaultProbability),
		now:          time.Now,
	}
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			g.anyOrigin = true
			continue
		}
		if o != "" {
			g.origins[strings.ToLower(o)] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// TTL returns the token lifetime.
func (g *Guard) TTL() time.Duration { return g.ttl }

func digest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue creates a token and records its digest.
func (g *Guard) Issue(ctx context.Context) (Token, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return Token{}, fmt.Errorf("generate csrf token: %w", err)
	}
	now := g.now()
	g.trigger.Maybe(func() { g.sweep(ctx, now) })

	tok := Token{
		Value:     base64.RawURLEncoding.EncodeToString(buf),
		ExpiresAt: now.Add(g.ttl),
	}
	if err := g.store.Save(ctx, digest(tok.Value), tok.ExpiresAt); err != nil {
		return Token{}, fmt.Errorf("save csrf token: %w", err)
	}
	metrics.CSRFTokensIssued.Inc()
	return tok, nil
}

// Verify reports whether header and cookie carry the same live token.
func (g *Guard) Verify(ctx context.Context, headerToken, cookieToken string) bool {
	return g.Check(ctx, headerToken, cookieToken) == ReasonOK
}

// Check is Verify with the failure reason. Failures are counted by reason.
func (g *Guard) Check(ctx context.Context, headerToken, cookieToken string) Reason {
	r := g.check(ctx, headerToken, cookieToken)
	if r != ReasonOK {
		metrics.CSRFFailures.WithLabelValues(string(r)).Inc()
	}
	return r
}

func (g *Guard) check(ctx context.Context, headerToken, cookieToken string) Reason {
	if headerToken == "" || cookieToken == "" {
		return ReasonMissing
	}
	if subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookieToken)) != 1 {
		return ReasonMismatch
	}

	now := g.now()
	g.trigger.Maybe(func() { g.sweep(ctx, now) })

	d := digest(cookieToken)
	expiresAt, found, err := g.store.Lookup(ctx, d)
	if err != nil {
		logging.Error().Err(err).Str("store", g.store.Name()).Msg("CSRF token lookup failed")
		return ReasonStoreError
	}
	if !found {
		return ReasonUnknown
	}
	if !now.Before(expiresAt) {
		if err := g.store.Delete(ctx, d); err != nil {
			logging.Warn().Err(err).Msg("Failed to delete expired CSRF token")
		}
		return ReasonExpired
	}
	return ReasonOK
}

// Live reports whether token is present and unexpired, without counting failures.
func (g *Guard) Live(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	expiresAt, found, err := g.store.Lookup(ctx, digest(token))
	return err == nil && found && g.now().Before(expiresAt)
}

// Invalidate revokes token. Unknown tokens are not an error.
func (g *Guard) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := g.store.Delete(ctx, digest(token)); err != nil {
		return fmt.Errorf("invalidate csrf token: %w", err)
	}
	return nil
}

// Sweep removes expired tokens now.
func (g *Guard) Sweep(ctx context.Context) (int, error) {
	return g.store.Sweep(ctx, g.now())
}

func (g *Guard) sweep(ctx context.Context, now time.Time) {
	removed, err := g.store.Sweep(ctx, now)
	if err != nil {
		logging.Warn().Err(err).Str("store", g.store.Name()).Msg("CSRF sweep failed")
		return
	}
	metrics.RecordSweep("csrf_"+g.store.Name(), removed)
}

// SetCookie writes tok as the double-submit cookie.
func (g *Guard) SetCookie(w http.ResponseWriter, tok Token) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tok.Value,
		Path:     "/",
		Expires:  tok.ExpiresAt,
		MaxAge:   int(g.ttl.Seconds()),
		HttpOnly: true,
		Secure:   g.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the double-submit cookie.
func (g *Guard) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Tokens extracts the header and cookie tokens from r.
func Tokens(r *http.Request) (header, cookie string) {
	header = r.Header.Get(HeaderName)
	if c, err := r.Cookie(CookieName); err == nil {
		cookie = c.Value
	}
	return header, cookie
}

// IsStateChanging reports whether method requires token verification.
func IsStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// OriginResult is the advisory origin check.
type OriginResult struct {
	// Origin is the scheme://host the request claims, from Origin or Referer.
	Origin  string
	Present bool
	Allowed bool
}

// Mismatch reports a present origin outside the allow-list.
func (o OriginResult) Mismatch() bool { return o.Present && !o.Allowed }

// CheckOrigin compares the request's Origin (else Referer) to the allow-list.
func (g *Guard) CheckOrigin(r *http.Request) OriginResult {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		origin = refererOrigin(r.Header.Get("Referer"))
	}
	if origin == "" {
		return OriginResult{}
	}
	origin = strings.ToLower(strings.TrimRight(origin, "/"))
	_, ok := g.origins[origin]
	return OriginResult{Origin: origin, Present: true, Allowed: g.anyOrigin || ok}
}

func refererOrigin(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
