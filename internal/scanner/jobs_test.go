// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package scanner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func startRunner(t *testing.T, r *JobRunner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, r *JobRunner, id string) Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := r.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait() error = %v (status %s)", err, job.Status)
	}
	return job
}

func TestJobRunner_Completes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(insecureSite())
	defer srv.Close()
	s, _ := newTestScanner(t)
	r := NewJobRunner(s, 2, 4, time.Hour)
	startRunner(t, r)

	job, err := r.Submit(ScanConfig{Targets: []string{srv.URL}, Depth: 1})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if job.Status != JobQueued || job.ID == "" {
		t.Errorf("submitted job = %+v", job)
	}

	done := waitFor(t, r, job.ID)
	if done.Status != JobCompleted {
		t.Fatalf("status = %s (%s), want completed", done.Status, done.Error)
	}
	if done.Result == nil || done.Result.Summary.PagesScanned != 2 {
		t.Errorf("result = %+v", done.Result)
	}
	if done.StartedAt == nil || done.FinishedAt == nil {
		t.Error("timestamps not set")
	}

	got, err := r.Get(job.ID)
	if err != nil || got.Status != JobCompleted {
		t.Errorf("Get() = %+v, %v", got, err)
	}
}

func TestJobRunner_CancelRunning(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	s, _ := newTestScanner(t)
	r := NewJobRunner(s, 1, 4, time.Hour)
	startRunner(t, r)

	job, err := r.Submit(ScanConfig{Targets: []string{srv.URL}})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("scan never reached the target")
	}

	if _, err := r.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if done := waitFor(t, r, job.ID); done.Status != JobCancelled {
		t.Errorf("status = %s, want cancelled", done.Status)
	}
}

func TestJobRunner_CancelQueued(t *testing.T) {
	t.Parallel()

	s, _ := newTestScanner(t)
	r := NewJobRunner(s, 1, 4, time.Hour)

	job, err := r.Submit(ScanConfig{Targets: []string{"http://127.0.0.1:1"}})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	got, err := r.Cancel(job.ID)
	if err != nil || got.Status != JobCancelled {
		t.Fatalf("Cancel() = %+v, %v", got, err)
	}

	// A worker dequeuing the cancelled job leaves it alone.
	startRunner(t, r)
	time.Sleep(50 * time.Millisecond)
	if got, _ := r.Get(job.ID); got.Status != JobCancelled || got.StartedAt != nil {
		t.Errorf("cancelled job was run: %+v", got)
	}
}

func TestJobRunner_QueueFull(t *testing.T) {
	t.Parallel()

	s, _ := newTestScanner(t)
	r := NewJobRunner(s, 1, 1, time.Hour)
	cfg := ScanConfig{Targets: []string{"http://127.0.0.1:1"}}

	if _, err := r.Submit(cfg); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if _, err := r.Submit(cfg); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second Submit() error = %v, want ErrQueueFull", err)
	}
}

func TestJobRunner_Errors(t *testing.T) {
	t.Parallel()

	s, _ := newTestScanner(t)
	r := NewJobRunner(s, 1, 1, time.Hour)

	if _, err := r.Submit(ScanConfig{}); !errors.Is(err, ErrInvalidScanConfig) {
		t.Errorf("Submit(empty) error = %v, want ErrInvalidScanConfig", err)
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get() error = %v, want ErrJobNotFound", err)
	}
	if _, err := r.Wait(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Wait() error = %v, want ErrJobNotFound", err)
	}
	if _, err := r.Cancel("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Cancel() error = %v, want ErrJobNotFound", err)
	}
}

func TestJobRunner_WaitTimeout(t *testing.T) {
	t.Parallel()

	s, _ := newTestScanner(t)
	r := NewJobRunner(s, 1, 1, time.Hour)
	job, _ := r.Submit(ScanConfig{Targets: []string{"http://127.0.0.1:1"}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	got, err := r.Wait(ctx, job.ID)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
	if got.Status != JobQueued {
		t.Errorf("status = %s, want queued", got.Status)
	}
}
