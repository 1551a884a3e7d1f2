// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/metrics"
)

// JobStatus is the lifecycle state of a queued full scan.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is a snapshot of a full scan job.
type Job struct {
	ID         string      `json:"jobId"`
	Status     JobStatus   `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
	Targets    []string    `json:"targets"`
	Result     *ScanResult `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Done reports whether the job reached a final state.
func (j Job) Done() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}

type jobState struct {
	job    Job
	cfg    ScanConfig
	cancel context.CancelFunc
	done   chan struct{}
}

// JobRunner executes full scans on a fixed pool of workers. It implements
// suture.Service; queued jobs survive a worker restart.
type JobRunner struct {
	scanner   *Scanner
	workers   int
	retention time.Duration
	queue     chan *jobState

	mu   sync.Mutex
	jobs map[string]*jobState
	now  func() time.Time
}

// NewJobRunner creates a runner with the given pool and queue sizes.
// Finished jobs are forgotten after retention.
func NewJobRunner(s *Scanner, workers, queueSize int, retention time.Duration) *JobRunner {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	if retention <= 0 {
		retention = time.Hour
	}
	return &JobRunner{
		scanner:   s,
		workers:   workers,
		retention: retention,
		queue:     make(chan *jobState, queueSize),
		jobs:      make(map[string]*jobState),
		now:       time.Now,
	}
}

// Submit validates cfg and queues it.
func (r *JobRunner) Submit(cfg ScanConfig) (Job, error) {
	if err := r.scanner.Validate(&cfg); err != nil {
		return Job{}, err
	}

	js := &jobState{
		job: Job{
			ID:        uuid.New().String(),
			Status:    JobQueued,
			CreatedAt: r.now().UTC(),
			Targets:   append([]string(nil), cfg.Targets...),
		},
		cfg:  cfg,
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.prune()
	r.jobs[js.job.ID] = js
	r.mu.Unlock()

	select {
	case r.queue <- js:
		metrics.ScanJobsQueued.Inc()
	default:
		r.mu.Lock()
		delete(r.jobs, js.job.ID)
		r.mu.Unlock()
		return Job{}, ErrQueueFull
	}
	return js.job, nil
}

// prune must be called with mu held.
func (r *JobRunner) prune() {
	cutoff := r.now().Add(-r.retention)
	for id, js := range r.jobs {
		if js.job.FinishedAt != nil && js.job.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
}

// Get returns a snapshot of job id.
func (r *JobRunner) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	js, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return js.job, nil
}

// Wait blocks until job id finishes or ctx is done, returning the latest
// snapshot either way. The error is ctx.Err() when ctx ended first.
func (r *JobRunner) Wait(ctx context.Context, id string) (Job, error) {
	r.mu.Lock()
	js, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	var waitErr error
	select {
	case <-js.done:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return js.job, waitErr
}

// Cancel stops a queued or running job. Finished jobs are returned as is.
func (r *JobRunner) Cancel(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	js, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	switch js.job.Status {
	case JobQueued:
		r.finish(js, JobCancelled, nil, "cancelled before start")
	case JobRunning:
		js.cancel()
	}
	return js.job, nil
}

// finish must be called with mu held.
func (r *JobRunner) finish(js *jobState, status JobStatus, result *ScanResult, errMsg string) {
	t := r.now().UTC()
	js.job.Status = status
	js.job.FinishedAt = &t
	js.job.Result = result
	js.job.Error = errMsg
	close(js.done)
}

// Serve runs the workers until ctx is cancelled. Running scans are
// cancelled with it.
func (r *JobRunner) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.work(ctx)
		}()
	}
	logging.Info().Int("workers", r.workers).Msg("Scan job workers started")
	wg.Wait()
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (r *JobRunner) String() string {
	return "scan-jobs"
}

func (r *JobRunner) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case js := <-r.queue:
			metrics.ScanJobsQueued.Dec()
			r.run(ctx, js)
		}
	}
}

func (r *JobRunner) run(ctx context.Context, js *jobState) {
	r.mu.Lock()
	if js.job.Status != JobQueued {
		r.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithCancel(ctx)
	js.cancel = cancel
	started := r.now().UTC()
	js.job.Status = JobRunning
	js.job.StartedAt = &started
	r.mu.Unlock()

	result, err := r.scanner.RunScan(jobCtx, js.cfg)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err == nil:
		r.finish(js, JobCompleted, result, "")
	case errors.Is(err, context.Canceled):
		r.finish(js, JobCancelled, result, err.Error())
	default:
		logging.Error().Err(err).Str("job_id", js.job.ID).Msg("Scan job failed")
		r.finish(js, JobFailed, result, err.Error())
	}
}
