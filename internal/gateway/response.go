// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package gateway

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/edgeguard/internal/logging"
)

// ErrorBody is the {error, message} shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes an ErrorBody with status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorBody{Error: code, Message: message}); err != nil {
		logging.Error().Err(err).Msg("Failed to write error response")
	}
}
