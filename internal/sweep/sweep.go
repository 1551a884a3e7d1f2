// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package sweep implements opportunistic cleanup: instead of a ticker, a
// small random fraction of normal operations also remove expired entries.
//
// Correctness never depends on a sweep running. Every store also checks
// expiry lazily at use time, so sweeps only bound memory.
package sweep

import (
	"math/rand/v2"
	"sync/atomic"
)

// DefaultProbability is the fraction of operations that trigger a sweep.
const DefaultProbability = 0.01

// Trigger decides whether the current operation should sweep.
type Trigger struct {
	probability float64
	roll        func() float64
	running     atomic.Bool
}

// NewTrigger returns a Trigger firing with probability p, clamped to [0,1].
func NewTrigger(p float64) *Trigger {
	switch {
	case p < 0:
		p = 0
	case p > 1:
		p = 1
	}
	return &Trigger{probability: p, roll: rand.Float64}
}

// Always returns a Trigger that fires on every call. Used in tests.
func Always() *Trigger { return NewTrigger(1) }

// Never returns a Trigger that never fires.
func Never() *Trigger { return NewTrigger(0) }

// Probability returns the configured firing probability.
func (t *Trigger) Probability() float64 { return t.probability }

// Maybe runs fn when the roll succeeds and no other sweep from this trigger
// is in flight. It reports whether fn ran. fn runs synchronously on the
// caller's goroutine, so it must be cheap relative to a request.
func (t *Trigger) Maybe(fn func()) bool {
	if t == nil || t.probability <= 0 {
		return false
	}
	if t.probability < 1 && t.roll() >= t.probability {
		return false
	}
	if !t.running.CompareAndSwap(false, true) {
		return false
	}
	defer t.running.Store(false)
	fn()
	return true
}
