// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordRateLimitDecision(t *testing.T) {
	allowedBefore := testutil.ToFloat64(RateLimitDecisions.WithLabelValues("test_route", "allowed"))
	deniedBefore := testutil.ToFloat64(RateLimitDecisions.WithLabelValues("test_route", "denied"))

	RecordRateLimitDecision("test_route", true)
	RecordRateLimitDecision("test_route", true)
	RecordRateLimitDecision("test_route", false)

	if got := testutil.ToFloat64(RateLimitDecisions.WithLabelValues("test_route", "allowed")) - allowedBefore; got != 2 {
		t.Errorf("allowed delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(RateLimitDecisions.WithLabelValues("test_route", "denied")) - deniedBefore; got != 1 {
		t.Errorf("denied delta = %v, want 1", got)
	}
}

func TestRecordSweep(t *testing.T) {
	sweepsBefore := testutil.ToFloat64(Sweeps.WithLabelValues("test_store"))
	entriesBefore := testutil.ToFloat64(SweptEntries.WithLabelValues("test_store"))

	RecordSweep("test_store", 0)
	RecordSweep("test_store", 4)

	if got := testutil.ToFloat64(Sweeps.WithLabelValues("test_store")) - sweepsBefore; got != 2 {
		t.Errorf("sweeps delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(SweptEntries.WithLabelValues("test_store")) - entriesBefore; got != 4 {
		t.Errorf("swept entries delta = %v, want 4", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/test", "200"))
	RecordAPIRequest("GET", "/test", "200", 15*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/test", "200")) - before; got != 1 {
		t.Errorf("requests delta = %v, want 1", got)
	}

	m := &dto.Metric{}
	obs, ok := APIRequestDuration.WithLabelValues("GET", "/test").(interface{ Write(*dto.Metric) error })
	if !ok {
		t.Fatal("histogram observer does not expose Write")
	}
	if err := obs.Write(m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if m.GetHistogram().GetSampleCount() < 1 {
		t.Errorf("histogram sample count = %d, want >= 1", m.GetHistogram().GetSampleCount())
	}
}

func TestSetOpenVulnerabilities(t *testing.T) {
	SetOpenVulnerabilities(map[string]int{"critical": 2, "low": 1})

	if got := testutil.ToFloat64(VulnerabilitiesOpen.WithLabelValues("critical")); got != 2 {
		t.Errorf("critical = %v, want 2", got)
	}
	if got := testutil.ToFloat64(VulnerabilitiesOpen.WithLabelValues("high")); got != 0 {
		t.Errorf("high = %v, want 0", got)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("active = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("active = %v, want %v", got, before)
	}
}
