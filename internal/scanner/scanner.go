// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package scanner

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/metrics"
	"github.com/tomtom215/edgeguard/internal/validation"
)

// Config holds scanner limits. A zero RequestsPerSecond disables per-host
// pacing; other zero fields take their defaults.
type Config struct {
	QuickTimeout      time.Duration
	FullTimeout       time.Duration
	RequestsPerSecond float64
	MaxDepth          int
	MaxTargets        int
	MaxPagesPerTarget int
	MaxBodyBytes      int64
	UserAgent         string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		QuickTimeout:      10 * time.Second,
		FullTimeout:       5 * time.Minute,
		RequestsPerSecond: 5,
		MaxDepth:          3,
		MaxTargets:        20,
		MaxPagesPerTarget: 50,
		MaxBodyBytes:      1 << 20,
		UserAgent:         "EdgeGuard-Scanner/1.0",
	}
}

// Scanner runs security checks against HTTP targets and records the
// findings in a Registry.
type Scanner struct {
	cfg      Config
	client   *http.Client
	hosts    *hostGuards
	registry *Registry
	auditor  Auditor
	now      func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithHTTPClient replaces the outbound client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scanner) { s.client = c }
}

// WithAuditor emits SCAN_STARTED and SCAN_COMPLETED events.
func WithAuditor(a Auditor) Option {
	return func(s *Scanner) { s.auditor = a }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// New creates a Scanner recording into registry.
func New(registry *Registry, cfg Config, opts ...Option) *Scanner {
	def := DefaultConfig()
	if cfg.QuickTimeout <= 0 {
		cfg.QuickTimeout = def.QuickTimeout
	}
	if cfg.FullTimeout <= 0 {
		cfg.FullTimeout = def.FullTimeout
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	if cfg.MaxTargets <= 0 {
		cfg.MaxTargets = def.MaxTargets
	}
	if cfg.MaxPagesPerTarget <= 0 {
		cfg.MaxPagesPerTarget = def.MaxPagesPerTarget
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	s := &Scanner{
		cfg:      cfg,
		registry: registry,
		auditor:  nopAuditor{},
		now:      time.Now,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				// Certificates are inspected by checkTLS rather than rejected,
				// and old protocol versions must be negotiable to be reported.
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true, // #nosec G402
					MinVersion:         tls.VersionTLS10,
				},
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hosts = newHostGuards(cfg.RequestsPerSecond)
	return s
}

// Registry returns the registry scans record into.
func (s *Scanner) Registry() *Registry { return s.registry }

// Config returns the effective limits.
func (s *Scanner) Config() Config { return s.cfg }

func (s *Scanner) newFetcher(followRedirects bool) *fetcher {
	c := *s.client
	if !followRedirects {
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &fetcher{client: &c, hosts: s.hosts, userAgent: s.cfg.UserAgent, maxBody: s.cfg.MaxBodyBytes}
}

// Validate checks cfg against the scanner limits. Failures wrap both
// ErrInvalidScanConfig and a *validation.RequestValidationError.
func (s *Scanner) Validate(cfg *ScanConfig) error {
	if verr := validation.ValidateStruct(cfg); verr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScanConfig, verr)
	}
	if len(cfg.Targets) > s.cfg.MaxTargets {
		return fmt.Errorf("%w: %w", ErrInvalidScanConfig,
			validation.NewError("targets", "max", fmt.Sprintf("at most %d targets are allowed", s.cfg.MaxTargets)))
	}
	if cfg.Depth > s.cfg.MaxDepth {
		return fmt.Errorf("%w: %w", ErrInvalidScanConfig,
			validation.NewError("depth", "max", fmt.Sprintf("must be %d or less", s.cfg.MaxDepth)))
	}
	return nil
}

// targetResult is what one target contributed to a scan.
type targetResult struct {
	vulns    []Vulnerability
	warnings []Warning
	pages    int
	checks   int
	err      error
}

func (tr *targetResult) warn(check ScanType, target string, err error) {
	metrics.ScanCheckErrors.WithLabelValues(string(check)).Inc()
	tr.warnings = append(tr.warnings, Warning{Check: string(check), Target: target, Error: err.Error()})
}

// scanTarget crawls target and runs every enabled check. Only an
// unreachable target sets err; failed checks become warnings.
func (s *Scanner) scanTarget(ctx context.Context, f *fetcher, cfg *ScanConfig, target string) targetResult {
	var tr targetResult
	start, err := url.Parse(target)
	if err != nil {
		tr.err = err
		return tr
	}
	pages, err := f.crawl(ctx, start, cfg.Depth, s.cfg.MaxPagesPerTarget)
	if err != nil {
		tr.err = err
		return tr
	}
	tr.pages = len(pages)
	root := pages[0]

	for _, p := range pages {
		if cfg.enabled(ScanHeaders) {
			tr.vulns = append(tr.vulns, checkHeaders(p)...)
			tr.checks++
		}
		if cfg.enabled(ScanCookies) {
			tr.vulns = append(tr.vulns, checkCookies(p)...)
			tr.checks++
		}
	}
	if cfg.enabled(ScanTLS) {
		tr.vulns = append(tr.vulns, checkTLS(root, s.now())...)
		tr.checks++
	}
	if cfg.enabled(ScanBanner) {
		tr.vulns = append(tr.vulns, checkBanner(root)...)
		tr.checks++
	}

	checks := []struct {
		scanType ScanType
		run      func(context.Context, *fetcher, *page) ([]Vulnerability, error)
	}{
		{ScanErrors, checkVerboseErrors},
		{ScanCORS, checkCORS},
		{ScanFiles, checkSensitiveFiles},
	}
	for _, c := range checks {
		if !cfg.enabled(c.scanType) {
			continue
		}
		found, err := c.run(ctx, f, root)
		tr.vulns = append(tr.vulns, found...)
		tr.checks++
		if err != nil {
			tr.warn(c.scanType, target, err)
		}
	}
	return tr
}

// QuickReport is a quick scan's findings plus the checks that failed.
type QuickReport struct {
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Warnings        []Warning       `json:"warnings"`
}

// QuickScan runs the passive checks and the error and CORS checks against
// a single URL, bounded by the quick timeout. An unreachable target is an
// error; individual check failures are dropped. QuickScanReport keeps them.
func (s *Scanner) QuickScan(ctx context.Context, rawURL string) ([]Vulnerability, error) {
	report, err := s.QuickScanReport(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return report.Vulnerabilities, nil
}

// QuickScanReport is QuickScan with a warning per failed check.
func (s *Scanner) QuickScanReport(ctx context.Context, rawURL string) (*QuickReport, error) {
	if !validation.IsHTTPURL(rawURL) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScanConfig,
			validation.NewError("targets", "httpurl", "must be an absolute http or https URL"))
	}

	scanID := uuid.New().String()
	started := s.now()
	s.auditScan(ctx, audit.EventScanStarted, scanID, "quick", 1, nil)

	scanCtx, cancel := context.WithTimeout(ctx, s.cfg.QuickTimeout)
	defer cancel()

	cfg := &ScanConfig{Targets: []string{rawURL}, CheckSSL: true, FollowRedirects: true}
	tr := s.scanTarget(scanCtx, s.newFetcher(true), cfg, rawURL)
	if tr.err != nil {
		metrics.RecordScan("quick", s.now().Sub(started))
		return nil, fmt.Errorf("quick scan %s: %w", rawURL, tr.err)
	}
	for _, w := range tr.warnings {
		logging.Ctx(ctx).Warn().Str("check", w.Check).Str("error", w.Error).Msg("Quick scan check failed")
	}

	vulns := s.registry.Record(context.WithoutCancel(ctx), unique(tr.vulns))
	metrics.RecordScan("quick", s.now().Sub(started))
	s.auditScan(ctx, audit.EventScanCompleted, scanID, "quick", 1, audit.Details{
		"vulnerabilities": audit.IntValue(len(vulns)),
		"warnings":        audit.IntValue(len(tr.warnings)),
		"durationMs":      audit.IntValue(int(s.now().Sub(started).Milliseconds())),
	})

	report := &QuickReport{Vulnerabilities: vulns, Warnings: tr.warnings}
	if report.Vulnerabilities == nil {
		report.Vulnerabilities = []Vulnerability{}
	}
	if report.Warnings == nil {
		report.Warnings = []Warning{}
	}
	return report, nil
}

// RunScan runs a full scan. Targets are scanned concurrently; each target
// is crawled to cfg.Depth. The scan stops at cfg.Timeout (or the configured
// full timeout) and returns partial results with a warning per failure.
// If ctx itself is cancelled the partial result is returned with an error
// wrapping context.Canceled.
func (s *Scanner) RunScan(ctx context.Context, cfg ScanConfig) (*ScanResult, error) {
	if err := s.Validate(&cfg); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = s.cfg.FullTimeout
	}

	result := &ScanResult{
		ID:        uuid.New().String(),
		StartTime: s.now().UTC(),
		Summary: Summary{
			BySeverity: make(map[Severity]int, 4),
			Warnings:   []Warning{},
		},
	}
	for _, sev := range Severities() {
		result.Summary.BySeverity[sev] = 0
	}
	s.auditScan(ctx, audit.EventScanStarted, result.ID, "full", len(cfg.Targets), nil)

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	f := s.newFetcher(cfg.FollowRedirects)
	results := make([]targetResult, len(cfg.Targets))
	var wg sync.WaitGroup
	for i, target := range cfg.Targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			results[i] = s.scanTarget(scanCtx, f, &cfg, target)
		}(i, target)
	}
	wg.Wait()

	var found []Vulnerability
	for i, tr := range results {
		if tr.err != nil {
			metrics.ScanCheckErrors.WithLabelValues("fetch").Inc()
			result.Summary.Warnings = append(result.Summary.Warnings,
				Warning{Check: "fetch", Target: cfg.Targets[i], Error: tr.err.Error()})
			continue
		}
		result.Summary.TargetsScanned++
		result.Summary.PagesScanned += tr.pages
		result.Summary.ChecksRun += tr.checks
		result.Summary.Warnings = append(result.Summary.Warnings, tr.warnings...)
		found = append(found, tr.vulns...)
	}

	result.Vulnerabilities = s.registry.Record(context.WithoutCancel(ctx), unique(found))
	for _, v := range result.Vulnerabilities {
		result.Summary.BySeverity[v.Severity]++
	}
	result.Summary.Total = len(result.Vulnerabilities)

	elapsed := s.now().Sub(result.StartTime)
	result.DurationMS = elapsed.Milliseconds()
	metrics.RecordScan("full", elapsed)

	s.auditScan(context.WithoutCancel(ctx), audit.EventScanCompleted, result.ID, "full", len(cfg.Targets), audit.Details{
		"vulnerabilities": audit.IntValue(result.Summary.Total),
		"warnings":        audit.IntValue(len(result.Summary.Warnings)),
		"durationMs":      audit.IntValue(int(result.DurationMS)),
	})

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("scan %s interrupted: %w", result.ID, err)
	}
	if errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
		logging.Ctx(ctx).Warn().Str("scan_id", result.ID).Dur("timeout", timeout).
			Msg("Scan timed out, returning partial results")
	}
	return result, nil
}

func (s *Scanner) auditScan(ctx context.Context, t audit.EventType, id, scanType string, targets int, extra audit.Details) {
	details := audit.Details{
		"scanId":   audit.StringValue(id),
		"scanType": audit.StringValue(scanType),
		"targets":  audit.IntValue(targets),
	}
	for k, v := range extra {
		details[k] = v
	}
	s.auditor.LogEvent(ctx, t, audit.EventInput{
		Source:  "scanner",
		Details: details,
		Tags:    []string{"scanner"},
	})
}

// unique drops repeated (type, location) findings within one scan, keeping
// the first.
func unique(vulns []Vulnerability) []Vulnerability {
	seen := make(map[string]bool, len(vulns))
	out := vulns[:0:0]
	for i := range vulns {
		key := vulns[i].dedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, vulns[i])
	}
	return out
}
