// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/edgeguard/internal/gateway"
	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/validation"
)

// Error codes returned by handlers. Enforcement codes live in gateway and
// authz.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidJSON       = "INVALID_JSON"
	CodeInvalidEventType  = "INVALID_EVENT_TYPE"
	CodeInvalidScanConfig = "INVALID_SCAN_CONFIG"
	CodeInvalidTransition = "INVALID_STATUS_TRANSITION"
	CodeNotFound          = "NOT_FOUND"
	CodeTargetUnreachable = "SCAN_TARGET_UNREACHABLE"
	CodeQueueFull         = "SCAN_QUEUE_FULL"
	CodeNotReady          = "NOT_READY"
	CodeInternal          = "INTERNAL_ERROR"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// validationErrorBody extends the standard error body with field details.
type validationErrorBody struct {
	gateway.ErrorBody
	Fields []validation.FieldError `json:"fields"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		gateway.WriteError(w, http.StatusInternalServerError, CodeInternal, "An internal error occurred.")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// respondError logs err (never returned to the client) and writes the
// {error, message} body.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		ev := logging.Ctx(r.Context()).Warn()
		if status >= http.StatusInternalServerError {
			ev = logging.Ctx(r.Context()).Error()
		}
		ev.Str("code", code).Str("path", logging.SanitizeValue(r.URL.Path)).
			Str("error", logging.SanitizeValue(err.Error())).Msg("API error")
	}
	gateway.WriteError(w, status, code, message)
}

// respondValidation writes a 400 carrying every failed field when err is a
// validation error, and reports whether it did.
func respondValidation(w http.ResponseWriter, code string, err error) bool {
	var verr *validation.RequestValidationError
	if !errors.As(err, &verr) {
		return false
	}
	respondJSON(w, http.StatusBadRequest, validationErrorBody{
		ErrorBody: gateway.ErrorBody{Error: code, Message: verr.Error()},
		Fields:    verr.Fields,
	})
	return true
}

// decodeJSON reads a single JSON object into dst. Unknown fields are
// rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func gatewayBody(code, message string) gateway.ErrorBody {
	return gateway.ErrorBody{Error: code, Message: message}
}
