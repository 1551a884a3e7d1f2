// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/edgeguard/internal/identity"
	"github.com/tomtom215/edgeguard/internal/scanner"
	"github.com/tomtom215/edgeguard/internal/validation"
)

// VulnerabilityList is the vulnerability registry view.
type VulnerabilityList struct {
	Vulnerabilities []scanner.Vulnerability `json:"vulnerabilities"`
	Total           int                     `json:"total"`
}

// StatusUpdateRequest moves a vulnerability through its lifecycle.
type StatusUpdateRequest struct {
	Status scanner.Status `json:"status" validate:"required,oneof=open acknowledged resolved"`
}

// handleVulnerabilities godoc
// @Summary List vulnerabilities
// @Description Most severe first, newest first within a severity.
// @Tags Scanner
// @Produce json
// @Param status query string false "open, acknowledged or resolved"
// @Param severity query string false "critical, high, medium or low"
// @Param type query string false "Vulnerability type"
// @Success 200 {object} VulnerabilityList
// @Failure 400 {object} gateway.ErrorBody
// @Router /security/vulnerabilities [get]
func (rt *Router) handleVulnerabilities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := scanner.Filter{
		Status:   scanner.Status(q.Get("status")),
		Severity: scanner.Severity(q.Get("severity")),
		Type:     q.Get("type"),
	}
	if f.Status != "" && !f.Status.Valid() {
		respondValidation(w, CodeValidation, validation.NewError("status", "oneof", "must be one of: open acknowledged resolved"))
		return
	}
	if f.Severity != "" && !f.Severity.Valid() {
		respondValidation(w, CodeValidation, validation.NewError("severity", "oneof", "must be one of: critical high medium low"))
		return
	}

	vulns := rt.deps.Scanner.Registry().GetVulnerabilities(f)
	if vulns == nil {
		vulns = []scanner.Vulnerability{}
	}
	respondJSON(w, http.StatusOK, VulnerabilityList{Vulnerabilities: vulns, Total: len(vulns)})
}

// handleVulnerabilityStatus godoc
// @Summary Change a vulnerability status
// @Description Allowed: open to acknowledged or resolved, acknowledged to resolved or open, resolved to open.
// @Tags Scanner
// @Accept json
// @Produce json
// @Param X-CSRF-Token header string true "CSRF token"
// @Param id path string true "Vulnerability id"
// @Param update body StatusUpdateRequest true "New status"
// @Success 200 {object} scanner.Vulnerability
// @Failure 400 {object} gateway.ErrorBody
// @Failure 404 {object} gateway.ErrorBody
// @Failure 409 {object} gateway.ErrorBody
// @Router /security/vulnerabilities/{id} [patch]
func (rt *Router) handleVulnerabilityStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidJSON, "Request body is not valid JSON.", err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidation(w, CodeValidation, verr)
		return
	}

	ctx := r.Context()
	id, _ := identity.FromContext(ctx)
	actor := id.UserID
	if actor == "" {
		actor = id.IP
	}

	v, err := rt.deps.Scanner.Registry().UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status, actor)
	switch {
	case errors.Is(err, scanner.ErrNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Vulnerability not found.", nil)
	case errors.Is(err, scanner.ErrInvalidTransition):
		respondError(w, r, http.StatusConflict, CodeInvalidTransition, err.Error(), nil)
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Could not update the vulnerability.", err)
	default:
		respondJSON(w, http.StatusOK, v)
	}
}
