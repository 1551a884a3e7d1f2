// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/edgeguard/internal/identity"
	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/scanner"
	"github.com/tomtom215/edgeguard/internal/validation"
)

// HeaderScanWarnings carries the number of quick scan checks that failed.
const HeaderScanWarnings = "X-Scan-Warnings"

// Scan modes accepted by POST /security/scan.
const (
	ScanModeQuick = "quick"
	ScanModeFull  = "full"
)

// ScanRequest triggers a quick or full scan.
type ScanRequest struct {
	ScanType        string             `json:"scanType" validate:"required,oneof=quick full"`
	Targets         []string           `json:"targets" validate:"required,min=1"`
	Depth           int                `json:"depth,omitempty"`
	Timeout         int                `json:"timeout,omitempty" validate:"gte=0,lte=3600"` // seconds
	Aggressive      bool               `json:"aggressive,omitempty"`
	CheckSSL        *bool              `json:"checkSSL,omitempty"`
	FollowRedirects *bool              `json:"followRedirects,omitempty"`
	ScanTypes       []scanner.ScanType `json:"scanTypes,omitempty"`
}

func (req *ScanRequest) config() scanner.ScanConfig {
	cfg := scanner.ScanConfig{
		Targets:         req.Targets,
		ScanTypes:       req.ScanTypes,
		Depth:           req.Depth,
		Timeout:         time.Duration(req.Timeout) * time.Second,
		Aggressive:      req.Aggressive,
		CheckSSL:        true,
		FollowRedirects: true,
	}
	if req.CheckSSL != nil {
		cfg.CheckSSL = *req.CheckSSL
	}
	if req.FollowRedirects != nil {
		cfg.FollowRedirects = *req.FollowRedirects
	}
	return cfg
}

// ScanAccepted is returned when a full scan outlives the synchronous wait.
type ScanAccepted struct {
	JobID  string            `json:"jobId"`
	Status scanner.JobStatus `json:"status"`
}

// handleScan godoc
// @Summary Run a vulnerability scan
// @Description quick scans one target inline and returns the vulnerabilities found. full queues a scan and waits briefly; a scan still running after the wait returns 202 with a job id to poll.
// @Tags Scanner
// @Accept json
// @Produce json
// @Param X-CSRF-Token header string true "CSRF token"
// @Param scan body ScanRequest true "Scan request"
// @Param include query string false "quick scans only: warnings wraps the result as {vulnerabilities, warnings}" Enums(warnings)
// @Success 200 {array} scanner.Vulnerability "quick scan; X-Scan-Warnings counts failed checks"
// @Success 202 {object} ScanAccepted "full scan still running"
// @Failure 400 {object} gateway.ErrorBody
// @Failure 502 {object} gateway.ErrorBody "target unreachable"
// @Failure 503 {object} gateway.ErrorBody "scan queue full"
// @Router /security/scan [post]
func (rt *Router) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidJSON, "Request body is not valid JSON.", err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidation(w, CodeInvalidScanConfig, verr)
		return
	}

	if req.ScanType == ScanModeQuick {
		rt.quickScan(w, r, &req)
		return
	}
	rt.fullScan(w, r, &req)
}

func (rt *Router) quickScan(w http.ResponseWriter, r *http.Request, req *ScanRequest) {
	if len(req.Targets) != 1 {
		respondValidation(w, CodeInvalidScanConfig,
			validation.NewError("targets", "len", "a quick scan takes exactly one target"))
		return
	}
	report, err := rt.deps.Scanner.QuickScanReport(r.Context(), req.Targets[0])
	if err != nil {
		if errors.Is(err, scanner.ErrInvalidScanConfig) {
			respondValidation(w, CodeInvalidScanConfig, err)
			return
		}
		respondError(w, r, http.StatusBadGateway, CodeTargetUnreachable, "The scan target could not be reached.", err)
		return
	}
	w.Header().Set(HeaderScanWarnings, strconv.Itoa(len(report.Warnings)))
	if r.URL.Query().Get("include") == "warnings" {
		respondJSON(w, http.StatusOK, report)
		return
	}
	respondJSON(w, http.StatusOK, report.Vulnerabilities)
}

func (rt *Router) fullScan(w http.ResponseWriter, r *http.Request, req *ScanRequest) {
	job, err := rt.deps.Jobs.Submit(req.config())
	switch {
	case errors.Is(err, scanner.ErrInvalidScanConfig):
		respondValidation(w, CodeInvalidScanConfig, err)
		return
	case errors.Is(err, scanner.ErrQueueFull):
		w.Header().Set("Retry-After", "30")
		respondError(w, r, http.StatusServiceUnavailable, CodeQueueFull, "Too many scans are queued. Try again later.", err)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Could not start the scan.", err)
		return
	}

	id, _ := identity.FromContext(r.Context())
	logging.Ctx(r.Context()).Info().Str("job_id", job.ID).Int("targets", len(job.Targets)).Str("user", id.UserID).Msg("Full scan queued")

	wait := rt.deps.Config.Scanner.SyncWait
	if wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		job, err = rt.deps.Jobs.Wait(ctx, job.ID)
		cancel()
		if err == nil && job.Status == scanner.JobCompleted && job.Result != nil {
			respondJSON(w, http.StatusOK, job.Result)
			return
		}
		if err == nil && job.Done() {
			respondJSON(w, http.StatusOK, job)
			return
		}
	}
	w.Header().Set("Location", "/api/v1/security/scan/jobs/"+job.ID)
	respondJSON(w, http.StatusAccepted, ScanAccepted{JobID: job.ID, Status: job.Status})
}

// handleScanJob godoc
// @Summary Get a scan job
// @Tags Scanner
// @Produce json
// @Param id path string true "Job id"
// @Success 200 {object} scanner.Job
// @Failure 404 {object} gateway.ErrorBody
// @Router /security/scan/jobs/{id} [get]
func (rt *Router) handleScanJob(w http.ResponseWriter, r *http.Request) {
	job, err := rt.deps.Jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		rt.respondJobError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// handleCancelScanJob godoc
// @Summary Cancel a scan job
// @Description Cancels a queued or running job. Finished jobs are returned unchanged.
// @Tags Scanner
// @Produce json
// @Param X-CSRF-Token header string true "CSRF token"
// @Param id path string true "Job id"
// @Success 200 {object} scanner.Job
// @Failure 404 {object} gateway.ErrorBody
// @Router /security/scan/jobs/{id} [delete]
func (rt *Router) handleCancelScanJob(w http.ResponseWriter, r *http.Request) {
	job, err := rt.deps.Jobs.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		rt.respondJobError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (rt *Router) respondJobError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, scanner.ErrJobNotFound) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Scan job not found.", nil)
		return
	}
	respondError(w, r, http.StatusInternalServerError, CodeInternal, "Could not load the scan job.", err)
}
