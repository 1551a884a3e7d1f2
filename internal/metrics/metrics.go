// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package metrics holds EdgeGuard's Prometheus collectors. All collectors
// are registered on the default registry through promauto and exposed at
// /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeguard_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgeguard_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgeguard_api_active_requests",
			Help: "Number of API requests currently being served",
		},
	)

	// Enforcement Metrics
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeguard_ratelimit_decisions_total",
			Help: "Rate limit decisions by route and result (allowed, denied)",
		},
		[]string{"route", "result"},
	)

	RateLimitStoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgeguard_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed in the backing store",
		},
	)

	CSRFFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeguard_csrf_failures_total",
			Help: "CSRF verification failures by reason",
		},
		[]string{"reason"},
	)

	CSRFTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgeguard_csrf_tokens_issued_total",
			Help: "CSRF tokens issued",
		},
	)

	Sweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeguard_sweeps_total",
			Help: "Opportunistic cleanup sweeps by store",
		},
		[]string{"store"},
	)

	SweptEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeguard_swept_entries_total",
			Help: "Expired entries removed by opportunistic cleanup",
		},
		[]string{"store"},
	)

	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeguard_authz_decisions_total",
			Help: "Authorization decisions on administrative routes by result",
		},
		[]string{"result"},
	)

	// Audit Metrics
	AuditEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeguard_audit_events_total",
			Help: "Audit events appended by type",
		},
		[]string{"type"},
	)

	AuditDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeguard_audit_dropped_total",
			Help: "Audit events that could not be recorded, by reason (buffer_full, store_error, closed)",
		},
		[]string{"reason"},
	)

	AuditPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgeguard_audit_publish_errors_total",
			Help: "Audit events that could not be forwarded to the event bus",
		},
	)

	// Scanner Metrics
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgeguard_scan_duration_seconds",
			Help:    "Vulnerability scan duration by scan type",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type"},
	)

	ScanCheckErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeguard_scan_check_errors_total",
			Help: "Scanner checks that failed and were recorded as warnings",
		},
		[]string{"check"},
	)

	ScanJobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgeguard_scan_jobs_queued",
			Help: "Full scan jobs waiting for a worker",
		},
	)

	VulnerabilitiesOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edgeguard_vulnerabilities_open",
			Help: "Open or acknowledged vulnerabilities by severity",
		},
		[]string{"severity"},
	)

	SecurityScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgeguard_security_score",
			Help: "Security score computed on the last status read (0-100)",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgeguard_ws_connections",
			Help: "Active audit stream websocket connections",
		},
	)
)

// RecordAPIRequest records one served request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordRateLimitDecision counts an allow or deny for route.
func RecordRateLimitDecision(route string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	RateLimitDecisions.WithLabelValues(route, result).Inc()
}

// RecordSweep counts one cleanup pass and the entries it removed.
func RecordSweep(store string, removed int) {
	Sweeps.WithLabelValues(store).Inc()
	if removed > 0 {
		SweptEntries.WithLabelValues(store).Add(float64(removed))
	}
}

// RecordScan observes a completed scan.
func RecordScan(scanType string, duration time.Duration) {
	ScanDuration.WithLabelValues(scanType).Observe(duration.Seconds())
}

// SetOpenVulnerabilities replaces the open-vulnerability gauges.
func SetOpenVulnerabilities(bySeverity map[string]int) {
	for _, sev := range []string{"critical", "high", "medium", "low"} {
		VulnerabilitiesOpen.WithLabelValues(sev).Set(float64(bySeverity[sev]))
	}
}
