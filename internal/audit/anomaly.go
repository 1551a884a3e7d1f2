// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package audit

import (
	"fmt"
	"math"
	"sort"
)

// AnomalyDetector flags unusual buckets. buckets is hourly and contiguous;
// only buckets[from:] are candidates, earlier ones are history for the
// baseline.
type AnomalyDetector interface {
	Detect(buckets []TimelineBucket, from int) []Anomaly
}

// inherentlyRisky types are reported as high severity whenever anomalous.
var inherentlyRisky = map[EventType]bool{
	EventLoginFailure:       true,
	EventCSRFViolation:      true,
	EventSuspiciousActivity: true,
}

// BaselineDetector compares each bucket's per-type count with the mean of
// the preceding BaselineBuckets buckets. Hours before the first bucket that
// holds any event are not part of the baseline; empty hours after it count
// as zero. Types in Ignore are never reported.
type BaselineDetector struct {
	Multiplier      float64
	MinCount        int
	BaselineBuckets int
	Ignore          []EventType
}

// DefaultBaselineDetector returns the 3x-over-24h detector with a floor of 3
// events that skips API_REQUEST telemetry.
func DefaultBaselineDetector() BaselineDetector {
	return BaselineDetector{
		Multiplier:      3.0,
		MinCount:        3,
		BaselineBuckets: 24,
		Ignore:          []EventType{EventAPIRequest},
	}
}

func (d BaselineDetector) ignored(t EventType) bool {
	for _, it := range d.Ignore {
		if it == t {
			return true
		}
	}
	return false
}

// firstActive returns the index of the first bucket with any event, or
// len(buckets) when all are empty.
func firstActive(buckets []TimelineBucket) int {
	for i := range buckets {
		for _, n := range buckets[i].ByType {
			if n > 0 {
				return i
			}
		}
	}
	return len(buckets)
}

// Detect implements AnomalyDetector. At most one anomaly is produced per
// bucket and type; a count is anomalous when it is at least MinCount and at
// least Multiplier times max(baseline, 1).
func (d BaselineDetector) Detect(buckets []TimelineBucket, from int) []Anomaly {
	window := d.BaselineBuckets
	if window <= 0 {
		window = 24
	}
	mult := d.Multiplier
	if mult <= 0 {
		mult = 3.0
	}

	first := firstActive(buckets)

	var out []Anomaly
	for i := max(from, first); i < len(buckets); i++ {
		b := buckets[i]
		types := make([]EventType, 0, len(b.ByType))
		for t := range b.ByType {
			types = append(types, t)
		}
		sort.Slice(types, func(a, c int) bool { return types[a] < types[c] })

		lo := max(i-window, first)
		for _, t := range types {
			count := b.ByType[t]
			if count < d.MinCount || d.ignored(t) {
				continue
			}
			var baseline float64
			if lo < i {
				sum := 0
				for j := lo; j < i; j++ {
					sum += buckets[j].ByType[t]
				}
				baseline = float64(sum) / float64(i-lo)
			}
			floor := math.Max(baseline, 1)
			if float64(count) < mult*floor {
				continue
			}

			severity := RiskMedium
			if inherentlyRisky[t] || float64(count) >= 10*floor {
				severity = RiskHigh
			}
			out = append(out, Anomaly{
				Type:     t,
				Severity: severity,
				Description: fmt.Sprintf("%d %s events in one hour against a baseline of %.2f",
					count, t, baseline),
				Timestamp: b.Timestamp,
				Count:     count,
				Baseline:  baseline,
			})
		}
	}
	return out
}
