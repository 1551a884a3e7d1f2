// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package scanner

import (
	"context"
	"net/http"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/sweep"
)

// hostIdleTTL is how long an unused host entry is kept.
const hostIdleTTL = 10 * time.Minute

// hostEntry paces and guards outbound requests to one host.
type hostEntry struct {
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	lastUsed time.Time
}

// hostGuards hands out one limiter and one circuit breaker per host so a
// slow or failing target cannot consume the whole scan budget.
type hostGuards struct {
	mu      sync.Mutex
	entries map[string]*hostEntry
	rps     rate.Limit
	burst   int
	sweep   *sweep.Trigger
}

func newHostGuards(requestsPerSecond float64) *hostGuards {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}
	return &hostGuards{
		entries: make(map[string]*hostEntry),
		rps:     limit,
		burst:   burst,
		sweep:   sweep.NewTrigger(sweep.DefaultProbability),
	}
}

func (g *hostGuards) get(host string) *hostEntry {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.sweep.Maybe(func() {
		for h, e := range g.entries {
			if now.Sub(e.lastUsed) > hostIdleTTL {
				delete(g.entries, h)
			}
		}
	})

	e, ok := g.entries[host]
	if !ok {
		e = &hostEntry{
			limiter: rate.NewLimiter(g.rps, g.burst),
			breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
				Name:        "scan-host:" + host,
				MaxRequests: 1,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
						Msg("Scan target circuit breaker state changed")
				},
			}),
		}
		g.entries[host] = e
	}
	e.lastUsed = now
	return e
}

// do sends req through the host's limiter and breaker.
func (g *hostGuards) do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	e := g.get(req.URL.Host)
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.breaker.Execute(func() (*http.Response, error) {
		return client.Do(req)
	})
}
