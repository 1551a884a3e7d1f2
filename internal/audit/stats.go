// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/edgeguard/internal/validation"
)

// BucketSize is the statistics timeline resolution.
const BucketSize = time.Hour

// maxTimelineBuckets bounds the timeline to roughly 90 days of hours.
const maxTimelineBuckets = 90 * 24

// historyProvider is implemented by detectors that need buckets before the
// requested range.
type historyProvider interface {
	HistoryBuckets() int
}

// HistoryBuckets implements historyProvider.
func (d BaselineDetector) HistoryBuckets() int {
	if d.BaselineBuckets <= 0 {
		return 24
	}
	return d.BaselineBuckets
}

// GetStatistics summarizes events with start <= timestamp <= end. A zero end
// means now; a zero start means end minus the configured stats window.
func (l *Logger) GetStatistics(ctx context.Context, start, end time.Time) (Statistics, error) {
	if end.IsZero() {
		end = l.now()
	}
	if start.IsZero() {
		start = end.Add(-l.cfg.StatsWindow)
	}
	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		return Statistics{}, validation.NewError("end", "gtefield", "must be greater than or equal to start")
	}

	first := start.Truncate(BucketSize)
	last := end.Truncate(BucketSize)
	nBuckets := int(last.Sub(first)/BucketSize) + 1
	if nBuckets > maxTimelineBuckets {
		return Statistics{}, validation.NewError("start", "max",
			fmt.Sprintf("range must span at most %d hours", maxTimelineBuckets))
	}

	history := 0
	if hp, ok := l.detector.(historyProvider); ok {
		history = hp.HistoryBuckets()
	}
	historyStart := first.Add(-time.Duration(history) * BucketSize)

	events, err := l.store.All(ctx, historyStart, end)
	if err != nil {
		return Statistics{}, fmt.Errorf("load audit events for statistics: %w", err)
	}

	buckets := make([]TimelineBucket, history+nBuckets)
	for i := range buckets {
		buckets[i] = TimelineBucket{
			Timestamp: historyStart.Add(time.Duration(i) * BucketSize),
			ByType:    make(map[EventType]int),
		}
	}

	stats := Statistics{
		Start:           start,
		End:             end,
		EventsByType:    make(map[EventType]int),
		EventsByRisk:    make(map[RiskLevel]int),
		EventsByOutcome: make(map[Outcome]int),
	}

	for i := range events {
		e := &events[i]
		idx := int(e.Timestamp.UTC().Sub(historyStart) / BucketSize)
		if idx < 0 || idx >= len(buckets) {
			continue
		}
		b := &buckets[idx]
		b.Total++
		b.ByType[e.EventType]++
		if e.Outcome == OutcomeFailure {
			b.Failures++
		}
		if e.RiskLevel.AtLeastHigh() {
			b.HighRisk++
		}

		if e.Timestamp.Before(start) {
			continue
		}
		stats.TotalEvents++
		stats.EventsByType[e.EventType]++
		stats.EventsByRisk[e.RiskLevel]++
		stats.EventsByOutcome[e.Outcome]++
	}

	stats.Anomalies = l.detector.Detect(buckets, history)
	if stats.Anomalies == nil {
		stats.Anomalies = []Anomaly{}
	}
	stats.TimelineData = buckets[history:]
	return stats, nil
}
