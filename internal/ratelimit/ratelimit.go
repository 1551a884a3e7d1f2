// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package ratelimit implements per-route, per-client fixed-window rate limiting.
//
// # Algorithm
//
// For each (route, client) key the store keeps {count, resetAt}. When no
// window exists or resetAt has passed, a new window starts with count=1 and
// resetAt=now+window and the request is allowed. Otherwise count is
// incremented; count > max denies with RetryAfter=resetAt-now, anything
// else allows with Remaining=max-count.
//
// # Boundary burst
//
// Windows are fixed, not sliding. A client can send max requests just before
// resetAt and another max just after it, so up to 2*max requests can land
// inside any interval of length window. This is accepted behaviour of the
// fixed-window contract, not a bug.
//
// # Cleanup
//
// There is no timer. Roughly one Check in a hundred (configurable) also
// sweeps expired windows out of the store. Expired windows are replaced
// lazily on their next use, so sweeping only bounds memory.
//
// # Backends
//
// MemoryStore keeps state in-process; limits are not shared across nodes.
// RedisStore performs the same check-increment atomically in Redis for
// deployments that need a shared budget. Both satisfy Store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/metrics"
	"github.com/tomtom215/edgeguard/internal/sweep"
)

// ErrInvalidRule is returned for a rule with a non-positive limit or window.
var ErrInvalidRule = errors.New("invalid rate limit rule")

// Rule is the per-route limit: at most MaxRequests per Window.
type Rule struct {
	MaxRequests int
	Window      time.Duration
}

// Validate rejects rules that could never allow a request or never reset.
func (r Rule) Validate() error {
	if r.MaxRequests <= 0 {
		return fmt.Errorf("%w: maxRequests must be > 0, got %d", ErrInvalidRule, r.MaxRequests)
	}
	if r.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0, got %v", ErrInvalidRule, r.Window)
	}
	return nil
}

// Decision is the outcome of one Check. Denial is a normal value.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Store keeps fixed windows. Increment must perform the whole
// read-check-increment for key atomically.
type Store interface {
	// Increment starts a new window (count=1, resetAt=now+window) when none
	// is live for key, otherwise increments the live one. It returns the
	// count after incrementing and the window's resetAt.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (count int, resetAt time.Time, err error)

	// Sweep removes windows whose resetAt is not after now and returns how many it removed.
	Sweep(ctx context.Context, now time.Time) (int, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

// Limiter applies rules against a Store.
type Limiter struct {
	store   Store
	trigger *sweep.Trigger
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSweepTrigger overrides the default 1% cleanup trigger.
func WithSweepTrigger(t *sweep.Trigger) Option {
	return func(l *Limiter) { l.trigger = t }
}

// New returns a Limiter over store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		trigger: sweep.NewTrigger(sweep.DefaultProbability),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key builds the store key for a route and a resolved client identity
// (identity.Identity.Key). Keys never collide across routes.
func Key(route, clientID string) string {
	return route + "|" + clientID
}

// Check counts one request from clientID on route against rule.
// The error is non-nil only when the rule is invalid or the store failed.
func (l *Limiter) Check(ctx context.Context, route, clientID string, rule Rule) (Decision, error) {
	if err := rule.Validate(); err != nil {
		return Decision{}, err
	}

	now := l.now()
	l.trigger.Maybe(func() { l.sweep(ctx, now) })

	count, resetAt, err := l.store.Increment(ctx, Key(route, clientID), rule.Window, now)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit store %s: %w", l.store.Name(), err)
	}

	d := Decision{Limit: rule.MaxRequests, ResetAt: resetAt}
	if count > rule.MaxRequests {
		d.RetryAfter = resetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
		metrics.RecordRateLimitDecision(route, false)
		return d, nil
	}

	d.Allowed = true
	d.Remaining = rule.MaxRequests - count
	metrics.RecordRateLimitDecision(route, true)
	return d, nil
}

func (l *Limiter) sweep(ctx context.Context, now time.Time) {
	removed, err := l.store.Sweep(ctx, now)
	if err != nil {
		logging.Warn().Err(err).Str("store", l.store.Name()).Msg("Rate limit sweep failed")
		return
	}
	metrics.RecordSweep("ratelimit_"+l.store.Name(), removed)
	if removed > 0 {
		logging.Debug().Int("removed", removed).Str("store", l.store.Name()).Msg("Swept expired rate limit windows")
	}
}
