// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/identity"
	"github.com/tomtom215/edgeguard/internal/validation"
)

// AuditQueryResponse is one page of audit events.
type AuditQueryResponse struct {
	Events []audit.Event `json:"events"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// AuditIngestRequest is an event reported by an upstream service.
type AuditIngestRequest struct {
	EventType string          `json:"eventType" validate:"required"`
	Details   audit.Details   `json:"details"`
	Source    string          `json:"source" validate:"required,max=128"`
	UserID    string          `json:"userId,omitempty" validate:"max=256"`
	Outcome   audit.Outcome   `json:"outcome" validate:"required,oneof=success failure warning"`
	RiskLevel audit.RiskLevel `json:"riskLevel,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Tags      []string        `json:"tags,omitempty" validate:"max=32,dive,max=64"`
}

// AuditIngestResponse carries the id of the recorded event.
type AuditIngestResponse struct {
	ID string `json:"id"`
}

// parseAuditFilter reads the audit query parameters. Malformed values
// yield a *validation.RequestValidationError.
func parseAuditFilter(q url.Values) (audit.Filter, error) {
	var f audit.Filter
	for _, t := range splitList(q.Get("types")) {
		f.Types = append(f.Types, audit.EventType(t))
	}
	for _, r := range splitList(q.Get("risk")) {
		f.RiskLevels = append(f.RiskLevels, audit.RiskLevel(r))
	}

	var err error
	if f.Start, err = parseTime(q, "start"); err != nil {
		return f, err
	}
	if f.End, err = parseTime(q, "end"); err != nil {
		return f, err
	}
	if f.Limit, err = parseInt(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseInt(q, "offset"); err != nil {
		return f, err
	}
	f.UserID = q.Get("user")
	f.IPAddress = q.Get("ip")
	f.Outcome = audit.Outcome(q.Get("outcome"))
	return f, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTime(q url.Values, name string) (time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, validation.NewError(name, "datetime", "must be an RFC 3339 timestamp")
	}
	return t, nil
}

func parseInt(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, validation.NewError(name, "gte", "must be a non-negative integer")
	}
	return n, nil
}

// handleAuditQuery godoc
// @Summary Query or export audit events
// @Description Without format, returns a page of events newest first. With format=json, csv or cef the matching events (up to 10000) are returned as a download.
// @Tags Audit
// @Produce json,text/csv,text/plain
// @Param types query string false "Comma-separated event types"
// @Param risk query string false "Comma-separated risk levels"
// @Param start query string false "RFC 3339 lower bound (inclusive)"
// @Param end query string false "RFC 3339 upper bound (inclusive)"
// @Param user query string false "User id"
// @Param ip query string false "Client IP"
// @Param outcome query string false "success, failure or warning"
// @Param limit query int false "Page size (default 100, max 1000)"
// @Param offset query int false "Page offset"
// @Param format query string false "json, csv or cef"
// @Success 200 {object} AuditQueryResponse
// @Failure 400 {object} gateway.ErrorBody
// @Failure 429 {object} gateway.ErrorBody
// @Router /security/audit [get]
func (rt *Router) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		respondValidation(w, CodeValidation, err)
		return
	}

	if format := r.URL.Query().Get("format"); format != "" {
		rt.exportAudit(w, r, filter, format)
		return
	}

	events, err := rt.deps.Audit.QueryEvents(ctx, filter)
	if err != nil {
		if respondValidation(w, CodeValidation, err) {
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Could not query audit events.", err)
		return
	}
	total, err := rt.deps.Audit.CountEvents(ctx, filter)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Could not count audit events.", err)
		return
	}

	limit := filter.Limit
	if limit == 0 {
		limit = audit.DefaultQueryLimit
	}
	respondJSON(w, http.StatusOK, AuditQueryResponse{
		Events: events,
		Total:  total,
		Limit:  min(limit, audit.MaxQueryLimit),
		Offset: filter.Offset,
	})
}

var exportContentTypes = map[audit.Format]string{
	audit.FormatJSON: "application/json",
	audit.FormatCSV:  "text/csv; charset=utf-8",
	audit.FormatCEF:  "text/plain; charset=utf-8",
}

func (rt *Router) exportAudit(w http.ResponseWriter, r *http.Request, filter audit.Filter, raw string) {
	ctx := r.Context()
	format, err := audit.ParseFormat(raw)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, validationErrorBody{
			ErrorBody: gatewayBody(CodeValidation, "format must be one of: json csv cef"),
			Fields:    []validation.FieldError{{Field: "format", Tag: "oneof", Param: raw, Message: "must be one of: json csv cef"}},
		})
		return
	}

	data, err := rt.deps.Audit.ExportLogs(ctx, filter, format)
	if err != nil {
		if respondValidation(w, CodeValidation, err) {
			return
		}
		if errors.Is(err, audit.ErrUnsupportedFormat) {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "Unsupported export format.", err)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Could not export audit events.", err)
		return
	}

	id, _ := identity.FromContext(ctx)
	rt.deps.Audit.LogEvent(ctx, audit.EventDataExport, audit.EventInput{
		RiskLevel: audit.RiskMedium,
		Source:    "api",
		IPAddress: id.IP,
		UserID:    id.UserID,
		Outcome:   audit.OutcomeSuccess,
		Details: audit.Details{
			"format": audit.StringValue(string(format)),
			"bytes":  audit.IntValue(len(data)),
		},
		Tags: []string{"audit", "export"},
	})

	filename := fmt.Sprintf("edgeguard-audit-%s.%s", rt.now().UTC().Format("20060102T150405Z"), format)
	w.Header().Set("Content-Type", exportContentTypes[format])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleAuditIngest godoc
// @Summary Record an audit event
// @Description Records an event reported by an upstream service. The client IP is taken from the connection, never from the body.
// @Tags Audit
// @Accept json
// @Produce json
// @Param X-CSRF-Token header string true "CSRF token"
// @Param event body AuditIngestRequest true "Event"
// @Success 201 {object} AuditIngestResponse
// @Failure 400 {object} gateway.ErrorBody
// @Failure 403 {object} gateway.ErrorBody
// @Failure 429 {object} gateway.ErrorBody
// @Router /security/audit [post]
func (rt *Router) handleAuditIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AuditIngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidJSON, "Request body is not valid JSON.", err)
		return
	}
	eventType, err := audit.ParseEventType(req.EventType)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidEventType,
			fmt.Sprintf("Unknown event type %q.", req.EventType), nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidation(w, CodeValidation, verr)
		return
	}

	id, _ := identity.FromContext(ctx)
	userID := req.UserID
	if id.UserID != "" {
		userID = id.UserID
	}
	eventID := rt.deps.Audit.LogEvent(ctx, eventType, audit.EventInput{
		RiskLevel: req.RiskLevel,
		Source:    req.Source,
		IPAddress: id.IP,
		UserID:    userID,
		Outcome:   req.Outcome,
		Details:   req.Details,
		Tags:      req.Tags,
	})
	respondJSON(w, http.StatusCreated, AuditIngestResponse{ID: eventID})
}

// handleAuditStats godoc
// @Summary Audit statistics
// @Description Counts by type, risk and outcome, an hourly timeline and detected anomalies. Defaults to the configured statistics window ending now.
// @Tags Audit
// @Produce json
// @Param start query string false "RFC 3339 start"
// @Param end query string false "RFC 3339 end"
// @Success 200 {object} audit.Statistics
// @Failure 400 {object} gateway.ErrorBody
// @Router /security/audit/stats [get]
func (rt *Router) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseTime(q, "start")
	if err != nil {
		respondValidation(w, CodeValidation, err)
		return
	}
	end, err := parseTime(q, "end")
	if err != nil {
		respondValidation(w, CodeValidation, err)
		return
	}
	stats, err := rt.deps.Audit.GetStatistics(r.Context(), start, end)
	if err != nil {
		if respondValidation(w, CodeValidation, err) {
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Could not compute audit statistics.", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
