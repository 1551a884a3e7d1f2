// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/metrics"
	"github.com/tomtom215/edgeguard/internal/scanner"
	"github.com/tomtom215/edgeguard/internal/status"
)

// handleStatus godoc
// @Summary Security status
// @Description Recomputes the security score from the audit statistics of the configured window and the active vulnerabilities. A source that fails is reported in errors and treated as empty.
// @Tags Status
// @Produce json
// @Success 200 {object} status.Snapshot
// @Failure 429 {object} gateway.ErrorBody
// @Router /security/status [get]
func (rt *Router) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := rt.now()

	var errs []status.SourceError
	stats, err := rt.deps.Audit.GetStatistics(ctx, now.Add(-rt.statsWindow()), now)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Audit statistics unavailable for status")
		errs = append(errs, status.SourceError{Source: "audit", Error: "audit statistics unavailable"})
		stats = audit.Statistics{Start: now.Add(-rt.statsWindow()).UTC(), End: now.UTC()}
	}
	vulns := rt.deps.Scanner.Registry().GetVulnerabilities(scanner.Filter{})

	snap := rt.deps.Aggregator.Snapshot(now, stats, vulns)
	snap.Errors = errs
	metrics.SecurityScore.Set(float64(snap.SecurityScore))
	respondJSON(w, http.StatusOK, snap)
}

func (rt *Router) statsWindow() time.Duration {
	if w := rt.deps.Config.Audit.StatsWindow; w > 0 {
		return w
	}
	return 24 * time.Hour
}
