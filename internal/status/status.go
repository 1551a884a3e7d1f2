// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package status derives the security status snapshot shown on the
// dashboard from audit statistics and the vulnerability registry. Every
// function here is pure.
package status

import (
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/scanner"
)

// Level classifies a score.
type Level string

const (
	LevelSecure   Level = "secure"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Scoring constants.
const (
	MaxScore                   = 100
	AnomalyPenalty             = 5
	HighVolumePenalty          = 10
	DefaultHighVolumeThreshold = 10000

	secureThreshold  = 80
	warningThreshold = 60
)

var severityPenalty = map[scanner.Severity]int{
	scanner.SeverityCritical: 20,
	scanner.SeverityHigh:     10,
	scanner.SeverityMedium:   5,
	scanner.SeverityLow:      2,
}

// Aggregator holds the tunables of the score. The zero value uses
// DefaultHighVolumeThreshold.
type Aggregator struct {
	// HighVolumeThreshold is the event count in the statistics window above
	// which the flat volume penalty applies.
	HighVolumeThreshold int
}

func (a Aggregator) threshold() int {
	if a.HighVolumeThreshold <= 0 {
		return DefaultHighVolumeThreshold
	}
	return a.HighVolumeThreshold
}

// ComputeScore starts at 100 and subtracts a penalty per open or
// acknowledged vulnerability by severity, 5 per anomaly, and 10 when the
// window's event count exceeds the high volume threshold. The result is
// clamped to [0, 100].
func (a Aggregator) ComputeScore(stats audit.Statistics, vulns []scanner.Vulnerability) int {
	score := MaxScore
	for i := range vulns {
		if vulns[i].Status.Active() {
			score -= severityPenalty[vulns[i].Severity]
		}
	}
	score -= AnomalyPenalty * len(stats.Anomalies)
	if stats.TotalEvents > a.threshold() {
		score -= HighVolumePenalty
	}
	return max(0, min(MaxScore, score))
}

// ComputeScore is Aggregator{}.ComputeScore.
func ComputeScore(stats audit.Statistics, vulns []scanner.Vulnerability) int {
	return Aggregator{}.ComputeScore(stats, vulns)
}

// Classify maps a score to secure (>= 80), warning (>= 60) or critical.
func Classify(score int) Level {
	switch {
	case score >= secureThreshold:
		return LevelSecure
	case score >= warningThreshold:
		return LevelWarning
	default:
		return LevelCritical
	}
}

// Trends holds signed deltas between the two most recent timeline
// buckets. Positive values mean things got worse.
type Trends struct {
	TotalEvents int `json:"totalEvents"`
	Failures    int `json:"failures"`
	HighRisk    int `json:"highRisk"`
}

// ComputeTrends compares the last two buckets of timeline. Fewer than two
// buckets yield zeros.
func ComputeTrends(timeline []audit.TimelineBucket) Trends {
	if len(timeline) < 2 {
		return Trends{}
	}
	prev, last := timeline[len(timeline)-2], timeline[len(timeline)-1]
	return Trends{
		TotalEvents: last.Total - prev.Total,
		Failures:    last.Failures - prev.Failures,
		HighRisk:    last.HighRisk - prev.HighRisk,
	}
}

// Metrics are the headline numbers of a snapshot.
type Metrics struct {
	TotalEvents               int                      `json:"totalEvents"`
	FailedEvents              int                      `json:"failedEvents"`
	HighRiskEvents            int                      `json:"highRiskEvents"`
	RateLimitViolations       int                      `json:"rateLimitViolations"`
	CSRFViolations            int                      `json:"csrfViolations"`
	Anomalies                 int                      `json:"anomalies"`
	OpenVulnerabilities       int                      `json:"openVulnerabilities"`
	VulnerabilitiesBySeverity map[scanner.Severity]int `json:"vulnerabilitiesBySeverity"`
}

// Summary explains the score.
type Summary struct {
	Message         string          `json:"message"`
	TopRisks        []string        `json:"topRisks"`
	RecentAnomalies []audit.Anomaly `json:"recentAnomalies"`
	WindowStart     time.Time       `json:"windowStart"`
	WindowEnd       time.Time       `json:"windowEnd"`
}

// SourceError marks an input that could not be read; the snapshot was
// computed without it.
type SourceError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Snapshot is the dashboard view. It is derived on every read and never
// stored.
type Snapshot struct {
	Timestamp     time.Time     `json:"timestamp"`
	Status        Level         `json:"status"`
	SecurityScore int           `json:"securityScore"`
	Metrics       Metrics       `json:"metrics"`
	Trends        Trends        `json:"trends"`
	Summary       Summary       `json:"summary"`
	Errors        []SourceError `json:"errors,omitempty"`
}

const (
	maxTopRisks        = 3
	maxRecentAnomalies = 5
)

// Snapshot combines stats and vulns into a Snapshot taken at now.
func (a Aggregator) Snapshot(now time.Time, stats audit.Statistics, vulns []scanner.Vulnerability) Snapshot {
	score := a.ComputeScore(stats, vulns)
	level := Classify(score)

	m := Metrics{
		TotalEvents:               stats.TotalEvents,
		FailedEvents:              stats.EventsByOutcome[audit.OutcomeFailure],
		HighRiskEvents:            stats.EventsByRisk[audit.RiskHigh] + stats.EventsByRisk[audit.RiskCritical],
		RateLimitViolations:       stats.EventsByType[audit.EventRateLimitExceeded],
		CSRFViolations:            stats.EventsByType[audit.EventCSRFViolation],
		Anomalies:                 len(stats.Anomalies),
		VulnerabilitiesBySeverity: make(map[scanner.Severity]int, 4),
	}
	for _, s := range scanner.Severities() {
		m.VulnerabilitiesBySeverity[s] = 0
	}

	active := make([]scanner.Vulnerability, 0, len(vulns))
	for _, v := range vulns {
		if v.Status.Active() {
			active = append(active, v)
			m.VulnerabilitiesBySeverity[v.Severity]++
		}
	}
	m.OpenVulnerabilities = len(active)

	return Snapshot{
		Timestamp:     now.UTC(),
		Status:        level,
		SecurityScore: score,
		Metrics:       m,
		Trends:        ComputeTrends(stats.TimelineData),
		Summary: Summary{
			Message:         message(level, m),
			TopRisks:        topRisks(active),
			RecentAnomalies: recentAnomalies(stats.Anomalies),
			WindowStart:     stats.Start,
			WindowEnd:       stats.End,
		},
	}
}

// NewSnapshot is Aggregator{}.Snapshot.
func NewSnapshot(now time.Time, stats audit.Statistics, vulns []scanner.Vulnerability) Snapshot {
	return Aggregator{}.Snapshot(now, stats, vulns)
}

func message(level Level, m Metrics) string {
	switch level {
	case LevelSecure:
		if m.OpenVulnerabilities == 0 && m.Anomalies == 0 {
			return "No open vulnerabilities or anomalies."
		}
		return fmt.Sprintf("Secure with %d open vulnerabilities and %d anomalies.", m.OpenVulnerabilities, m.Anomalies)
	case LevelWarning:
		return fmt.Sprintf("Attention needed: %d open vulnerabilities and %d anomalies.", m.OpenVulnerabilities, m.Anomalies)
	default:
		return fmt.Sprintf("Critical: %d open vulnerabilities (%d critical) and %d anomalies.",
			m.OpenVulnerabilities, m.VulnerabilitiesBySeverity[scanner.SeverityCritical], m.Anomalies)
	}
}

func severityRank(s scanner.Severity) int {
	return severityPenalty[s]
}

func topRisks(active []scanner.Vulnerability) []string {
	sorted := append([]scanner.Vulnerability(nil), active...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return severityRank(sorted[i].Severity) > severityRank(sorted[j].Severity)
	})
	out := make([]string, 0, maxTopRisks)
	for _, v := range sorted {
		if len(out) == maxTopRisks {
			break
		}
		out = append(out, fmt.Sprintf("[%s] %s at %s", v.Severity, v.Title, v.Location))
	}
	return out
}

func recentAnomalies(anomalies []audit.Anomaly) []audit.Anomaly {
	out := append([]audit.Anomaly(nil), anomalies...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > maxRecentAnomalies {
		out = out[:maxRecentAnomalies]
	}
	if out == nil {
		out = []audit.Anomaly{}
	}
	return out
}
