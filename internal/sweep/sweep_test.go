// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package sweep

import "testing"

func TestTrigger_AlwaysAndNever(t *testing.T) {
	t.Parallel()

	calls := 0
	for i := 0; i < 10; i++ {
		Always().Maybe(func() { calls++ })
		Never().Maybe(func() { calls += 100 })
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
}

func TestTrigger_Probability(t *testing.T) {
	t.Parallel()

	tr := NewTrigger(0.25)
	rolls := []float64{0.1, 0.3, 0.24, 0.25, 0.9}
	i := 0
	tr.roll = func() float64 { v := rolls[i]; i++; return v }

	fired := 0
	for range rolls {
		if tr.Maybe(func() {}) {
			fired++
		}
	}
	if fired != 2 {
		t.Errorf("fired = %d, want 2 (rolls below 0.25)", fired)
	}
}

func TestTrigger_Clamp(t *testing.T) {
	t.Parallel()

	if p := NewTrigger(-1).Probability(); p != 0 {
		t.Errorf("NewTrigger(-1).Probability() = %v, want 0", p)
	}
	if p := NewTrigger(5).Probability(); p != 1 {
		t.Errorf("NewTrigger(5).Probability() = %v, want 1", p)
	}
}

func TestTrigger_NoReentry(t *testing.T) {
	t.Parallel()

	tr := Always()
	inner := false
	tr.Maybe(func() {
		inner = tr.Maybe(func() {})
	})
	if inner {
		t.Error("nested Maybe ran while a sweep was in flight")
	}
}

func TestTrigger_Nil(t *testing.T) {
	t.Parallel()

	var tr *Trigger
	if tr.Maybe(func() { t.Error("nil trigger ran fn") }) {
		t.Error("nil Trigger.Maybe() = true, want false")
	}
}
