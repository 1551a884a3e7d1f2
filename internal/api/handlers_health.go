// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tomtom215/edgeguard/internal/logging"
)

// readinessTimeout bounds each readiness check.
const readinessTimeout = 2 * time.Second

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// ReadyResponse is returned by /health/ready.
type ReadyResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// handleHealth godoc
// @Summary Liveness check
// @Tags Core
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(rt.now().Sub(rt.started).Seconds()),
	})
}

// handleReady godoc
// @Summary Readiness check
// @Description Runs every registered dependency check; 503 when any fails.
// @Tags Core
// @Produce json
// @Success 200 {object} ReadyResponse
// @Failure 503 {object} ReadyResponse
// @Router /health/ready [get]
func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(rt.deps.Readiness))
	for name := range rt.deps.Readiness {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := ReadyResponse{Ready: true, Checks: make(map[string]string, len(names))}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := rt.deps.Readiness[name](ctx)
		cancel()
		if err != nil {
			resp.Ready = false
			resp.Checks[name] = "unavailable"
			logging.Ctx(r.Context()).Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			continue
		}
		resp.Checks[name] = "ok"
	}

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, resp)
}
