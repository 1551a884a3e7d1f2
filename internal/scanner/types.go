// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package scanner

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown vulnerability ids.
	ErrNotFound = errors.New("vulnerability not found")

	// ErrInvalidTransition is returned by UpdateStatus for a disallowed
	// status change.
	ErrInvalidTransition = errors.New("invalid vulnerability status transition")

	// ErrInvalidScanConfig wraps every scan configuration validation failure.
	ErrInvalidScanConfig = errors.New("invalid scan configuration")

	// ErrJobNotFound is returned for unknown or pruned scan job ids.
	ErrJobNotFound = errors.New("scan job not found")

	// ErrQueueFull is returned when no more full scans can be queued.
	ErrQueueFull = errors.New("scan queue is full")
)

// Severity ranks a vulnerability.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity from most to least severe.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.rank() > 0
}

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Status is the triage state of a vulnerability.
type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusAcknowledged || s == StatusResolved
}

// Active reports whether the vulnerability still counts against the
// security score.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusAcknowledged
}

// Vulnerability types reported by the built-in checks.
const (
	TypeMissingCSP             = "missing_content_security_policy"
	TypeMissingHSTS            = "missing_hsts"
	TypeMissingFrameProtection = "missing_frame_protection"
	TypeMissingContentTypeOpts = "missing_content_type_options"
	TypeMissingReferrerPolicy  = "missing_referrer_policy"
	TypeInsecureCookie         = "insecure_cookie"
	TypeInsecureTransport      = "insecure_transport"
	TypeWeakTLS                = "weak_tls_version"
	TypeCertificateExpiring    = "certificate_expiring"
	TypeVerboseErrors          = "verbose_errors"
	TypeServerBanner           = "server_banner_disclosure"
	TypePermissiveCORS         = "permissive_cors"
	TypeSensitiveFile          = "sensitive_file_exposure"
)

// Vulnerability is one finding. Only Status changes after discovery.
type Vulnerability struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Severity       Severity  `json:"severity"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	Impact         string    `json:"impact"`
	Recommendation string    `json:"recommendation"`
	Status         Status    `json:"status"`
	DiscoveredAt   time.Time `json:"discoveredAt"`
	LastSeenAt     time.Time `json:"lastSeenAt"`
}

// dedupKey identifies the same finding across scans.
func (v *Vulnerability) dedupKey() string {
	return v.Type + "\x00" + v.Location
}

// ScanType selects a group of checks.
type ScanType string

const (
	ScanHeaders ScanType = "headers"
	ScanCookies ScanType = "cookies"
	ScanTLS     ScanType = "tls"
	ScanErrors  ScanType = "errors"
	ScanBanner  ScanType = "banner"
	ScanCORS    ScanType = "cors"
	ScanFiles   ScanType = "files"
)

// AllScanTypes lists every check group in execution order.
func AllScanTypes() []ScanType {
	return []ScanType{ScanHeaders, ScanCookies, ScanTLS, ScanErrors, ScanBanner, ScanCORS, ScanFiles}
}

// Valid reports whether t is a known scan type.
func (t ScanType) Valid() bool {
	for _, s := range AllScanTypes() {
		if s == t {
			return true
		}
	}
	return false
}

// ScanConfig parameterizes a full scan.
type ScanConfig struct {
	Targets         []string      `json:"targets" validate:"required,min=1,dive,httpurl"`
	ScanTypes       []ScanType    `json:"scanTypes,omitempty" validate:"omitempty,dive,oneof=headers cookies tls errors banner cors files"`
	Depth           int           `json:"depth" validate:"gte=0"`
	Timeout         time.Duration `json:"-" validate:"gte=0"`
	Aggressive      bool          `json:"aggressive"`
	CheckSSL        bool          `json:"checkSSL"`
	FollowRedirects bool          `json:"followRedirects"`
}

func (c *ScanConfig) enabled(t ScanType) bool {
	switch t {
	case ScanFiles:
		if !c.Aggressive {
			return false
		}
	case ScanTLS:
		if !c.CheckSSL {
			return false
		}
	}
	if len(c.ScanTypes) == 0 {
		return true
	}
	for _, s := range c.ScanTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Warning records a check that failed during a scan.
type Warning struct {
	Check  string `json:"check"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

// Summary aggregates a scan.
type Summary struct {
	Total          int              `json:"total"`
	BySeverity     map[Severity]int `json:"bySeverity"`
	TargetsScanned int              `json:"targetsScanned"`
	PagesScanned   int              `json:"pagesScanned"`
	ChecksRun      int              `json:"checksRun"`
	Warnings       []Warning        `json:"warnings"`
}

// ScanResult is the outcome of RunScan.
type ScanResult struct {
	ID              string          `json:"id"`
	StartTime       time.Time       `json:"startTime"`
	DurationMS      int64           `json:"duration"`
	Summary         Summary         `json:"summary"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}
