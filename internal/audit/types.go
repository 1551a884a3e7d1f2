// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package audit

import (
	"errors"
	"time"
)

var (
	// ErrUnsupportedFormat is returned by ExportLogs for an unknown format.
	ErrUnsupportedFormat = errors.New("unsupported export format")

	// ErrUnknownEventType is returned when parsing an event type outside the enum.
	ErrUnknownEventType = errors.New("unknown event type")
)

// EventType categorizes audit events.
type EventType string

const (
	// Authentication events reported by upstream services
	EventLoginAttempt   EventType = "LOGIN_ATTEMPT"
	EventLoginSuccess   EventType = "LOGIN_SUCCESS"
	EventLoginFailure   EventType = "LOGIN_FAILURE"
	EventLogout         EventType = "LOGOUT"
	EventPasswordChange EventType = "PASSWORD_CHANGE"
	EventAccountLocked  EventType = "ACCOUNT_LOCKED"

	// Access
	EventPermissionDenied EventType = "PERMISSION_DENIED"
	EventDataAccess       EventType = "DATA_ACCESS"
	EventDataExport       EventType = "DATA_EXPORT"
	EventDataModification EventType = "DATA_MODIFICATION"
	EventAdminAction      EventType = "ADMIN_ACTION"
	EventConfigChange     EventType = "CONFIG_CHANGE"

	// Gateway policy
	EventRateLimitExceeded  EventType = "RATE_LIMIT_EXCEEDED"
	EventCSRFViolation      EventType = "CSRF_VIOLATION"
	EventOriginMismatch     EventType = "ORIGIN_MISMATCH"
	EventSuspiciousActivity EventType = "SUSPICIOUS_ACTIVITY"
	EventAPIRequest         EventType = "API_REQUEST"

	// Scanner
	EventScanStarted                EventType = "SCAN_STARTED"
	EventScanCompleted              EventType = "SCAN_COMPLETED"
	EventVulnerabilityDetected      EventType = "VULNERABILITY_DETECTED"
	EventVulnerabilityStatusChanged EventType = "VULNERABILITY_STATUS_CHANGED"
)

// defaultRisk is applied when an event is logged without a risk level.
var defaultRisk = map[EventType]RiskLevel{
	EventLoginAttempt:               RiskLow,
	EventLoginSuccess:               RiskLow,
	EventLoginFailure:               RiskMedium,
	EventLogout:                     RiskLow,
	EventPasswordChange:             RiskMedium,
	EventAccountLocked:              RiskHigh,
	EventPermissionDenied:           RiskMedium,
	EventDataAccess:                 RiskLow,
	EventDataExport:                 RiskMedium,
	EventDataModification:           RiskMedium,
	EventAdminAction:                RiskMedium,
	EventConfigChange:               RiskHigh,
	EventRateLimitExceeded:          RiskMedium,
	EventCSRFViolation:              RiskHigh,
	EventOriginMismatch:             RiskMedium,
	EventSuspiciousActivity:         RiskHigh,
	EventAPIRequest:                 RiskLow,
	EventScanStarted:                RiskLow,
	EventScanCompleted:              RiskLow,
	EventVulnerabilityDetected:      RiskHigh,
	EventVulnerabilityStatusChanged: RiskMedium,
}

// EventTypes returns every known event type.
func EventTypes() []EventType {
	out := make([]EventType, 0, len(defaultRisk))
	for t := range defaultRisk {
		out = append(out, t)
	}
	return out
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	_, ok := defaultRisk[t]
	return ok
}

// DefaultRisk returns the risk level recorded when none is given.
func (t EventType) DefaultRisk() RiskLevel {
	if r, ok := defaultRisk[t]; ok {
		return r
	}
	return RiskLow
}

// ParseEventType validates s against the enum.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", ErrUnknownEventType
	}
	return t, nil
}

// RiskLevel is the coarse severity of a security event.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// AtLeastHigh reports whether r is high or critical.
func (r RiskLevel) AtLeastHigh() bool {
	return r == RiskHigh || r == RiskCritical
}

// Outcome indicates whether an action succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeWarning Outcome = "warning"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeWarning:
		return true
	}
	return false
}

// Event is an immutable audit record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"eventType"`
	RiskLevel RiskLevel `json:"riskLevel"`
	// Source names the component or client that reported the event.
	Source    string   `json:"source"`
	IPAddress string   `json:"ipAddress"`
	UserID    string   `json:"userId,omitempty"`
	Outcome   Outcome  `json:"outcome"`
	Details   Details  `json:"details"`
	Tags      []string `json:"tags"`
}

// EventInput is what callers supply to LogEvent. Zero RiskLevel and Outcome
// take the type's default risk and success.
type EventInput struct {
	RiskLevel RiskLevel
	Source    string
	IPAddress string
	UserID    string
	Outcome   Outcome
	Details   Details
	Tags      []string
}

// TimelineBucket aggregates one hour of events.
type TimelineBucket struct {
	Timestamp time.Time         `json:"timestamp"`
	Total     int               `json:"total"`
	ByType    map[EventType]int `json:"byType"`
	Failures  int               `json:"failures"`
	HighRisk  int               `json:"highRisk"`
}

// Anomaly flags an unusual count of one event type in one bucket.
type Anomaly struct {
	Type        EventType `json:"type"`
	Severity    RiskLevel `json:"severity"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Count       int       `json:"count"`
	Baseline    float64   `json:"baseline"`
}

// Statistics summarizes a time range.
type Statistics struct {
	Start           time.Time         `json:"start"`
	End             time.Time         `json:"end"`
	TotalEvents     int               `json:"totalEvents"`
	EventsByType    map[EventType]int `json:"eventsByType"`
	EventsByRisk    map[RiskLevel]int `json:"eventsByRisk"`
	EventsByOutcome map[Outcome]int   `json:"eventsByOutcome"`
	Anomalies       []Anomaly         `json:"anomalies"`
	TimelineData    []TimelineBucket  `json:"timelineData"`
}

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatCEF  Format = "cef"
)

// ParseFormat maps a query parameter to a Format; empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatCEF:
		return FormatCEF, nil
	}
	return "", ErrUnsupportedFormat
}

// ContentType returns the HTTP content type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatCEF:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}
