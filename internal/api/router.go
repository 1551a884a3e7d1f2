// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/authz"
	"github.com/tomtom215/edgeguard/internal/config"
	"github.com/tomtom215/edgeguard/internal/csrf"
	"github.com/tomtom215/edgeguard/internal/gateway"
	"github.com/tomtom215/edgeguard/internal/identity"
	"github.com/tomtom215/edgeguard/internal/middleware"
	"github.com/tomtom215/edgeguard/internal/ratelimit"
	"github.com/tomtom215/edgeguard/internal/scanner"
	"github.com/tomtom215/edgeguard/internal/status"
)

// Route names double as rate-limit keys; each has its own counters.
const (
	RouteCSRFToken       = "csrf_token"
	RouteAuditIngest     = "audit_ingest"
	RouteAuditQuery      = "audit_query"
	RouteAuditStats      = "audit_stats"
	RouteScan            = "scan"
	RouteScanJobs        = "scan_jobs"
	RouteVulnerabilities = "vulnerabilities"
	RouteStatus          = "status"
	RouteStream          = "stream"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Dependencies are the components the router serves.
type Dependencies struct {
	Config     *config.Config
	Gateway    *gateway.Gateway
	Resolver   *identity.Resolver
	Guard      *csrf.Guard
	Audit      *audit.Logger
	Scanner    *scanner.Scanner
	Jobs       *scanner.JobRunner
	Aggregator status.Aggregator

	// Authz is nil when authorization is disabled.
	Authz *authz.Middleware

	// Stream serves the live audit websocket; nil disables the route.
	Stream http.Handler

	// Readiness is consulted by /health/ready, keyed by dependency name.
	Readiness map[string]ReadinessCheck

	// Now overrides time.Now.
	Now func() time.Time
}

// Router builds the HTTP handler.
type Router struct {
	deps    Dependencies
	protect map[string]func(http.Handler) http.Handler
	now     func() time.Time
	started time.Time
}

// NewRouter validates every configured route rule and prepares the
// per-route enforcement chains.
func NewRouter(deps Dependencies) (*Router, error) {
	if deps.Config == nil || deps.Gateway == nil || deps.Resolver == nil || deps.Audit == nil ||
		deps.Scanner == nil || deps.Jobs == nil {
		return nil, errors.New("api: missing required dependency")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	rt := &Router{
		deps:    deps,
		protect: make(map[string]func(http.Handler) http.Handler),
		now:     now,
		started: now(),
	}

	routes := deps.Config.RateLimit.Routes
	rules := routes.Named()
	rules[RouteAuditStats] = routes.AuditQuery
	for name, rule := range rules {
		mw, err := deps.Gateway.Protect(name, ratelimit.Rule{MaxRequests: rule.MaxRequests, Window: rule.Window})
		if err != nil {
			return nil, err
		}
		rt.protect[name] = mw
	}
	return rt, nil
}

// secured returns the enforcement chain for route, followed by
// authorization when it is enabled.
func (rt *Router) secured(route string) []func(http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{rt.protect[route]}
	if rt.deps.Authz != nil {
		chain = append(chain, rt.deps.Authz.Authorize)
	}
	return chain
}

// Handler returns the complete HTTP handler.
func (rt *Router) Handler() http.Handler {
	cfg := rt.deps.Config
	r := chi.NewRouter()

	// The identity resolver replaces chimiddleware.RealIP: forwarding
	// headers are only honoured from trusted proxies.
	r.Use(middleware.RequestID)
	r.Use(rt.deps.Resolver.Middleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	if cfg.Security.CORSEnabled {
		r.Use(rt.cors())
	}
	if gl := cfg.Security.GlobalRateLimit; gl.Requests > 0 && gl.Window > 0 {
		r.Use(httprate.Limit(gl.Requests, gl.Window,
			httprate.WithKeyFuncs(clientIPKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				gateway.WriteError(w, http.StatusTooManyRequests, gateway.CodeRateLimited,
					"Too many requests from this address. Slow down and try again shortly.")
			}),
		))
	}

	r.Get("/health", rt.handleHealth)
	r.Get("/health/ready", rt.handleReady)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SecurityHeaders)

		// Anyone may fetch a token; authorization would lock browsers out
		// before they can make their first write.
		r.With(rt.protect[RouteCSRFToken]).Get("/csrf-token", rt.handleCSRFToken)

		r.Route("/security", func(r chi.Router) {
			r.With(rt.secured(RouteAuditQuery)...).Get("/audit", rt.handleAuditQuery)
			r.With(rt.secured(RouteAuditIngest)...).Post("/audit", rt.handleAuditIngest)
			r.With(rt.secured(RouteAuditStats)...).Get("/audit/stats", rt.handleAuditStats)

			r.With(rt.secured(RouteScan)...).Post("/scan", rt.handleScan)
			r.With(rt.secured(RouteScanJobs)...).Get("/scan/jobs/{id}", rt.handleScanJob)
			r.With(rt.secured(RouteScanJobs)...).Delete("/scan/jobs/{id}", rt.handleCancelScanJob)

			r.With(rt.secured(RouteVulnerabilities)...).Get("/vulnerabilities", rt.handleVulnerabilities)
			r.With(rt.secured(RouteVulnerabilities)...).Patch("/vulnerabilities/{id}", rt.handleVulnerabilityStatus)

			r.With(rt.secured(RouteStatus)...).Get("/status", rt.handleStatus)

			if rt.deps.Stream != nil {
				r.With(rt.secured(RouteStream)...).Get("/stream", rt.deps.Stream.ServeHTTP)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		gateway.WriteError(w, http.StatusNotFound, CodeNotFound, "No such endpoint.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		gateway.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed on this endpoint.")
	})
	return r
}

func (rt *Router) cors() func(http.Handler) http.Handler {
	sec := rt.deps.Config.Security
	allowed := []string{"Content-Type", csrf.HeaderName, middleware.RequestIDHeader}
	if sec.Identity.AssertionHeader != "" {
		allowed = append(allowed, sec.Identity.AssertionHeader)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: sec.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: allowed,
		ExposedHeaders: []string{
			gateway.HeaderLimit, gateway.HeaderRemaining, gateway.HeaderReset,
			gateway.HeaderRetryAfter, csrf.HeaderName, middleware.RequestIDHeader,
			HeaderScanWarnings,
		},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// clientIPKey keys the backstop limiter on the resolved client address.
func clientIPKey(r *http.Request) (string, error) {
	if id, ok := identity.FromContext(r.Context()); ok && id.IP != "" {
		return id.IP, nil
	}
	return httprate.KeyByIP(r)
}
