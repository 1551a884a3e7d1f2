// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package authz

import (
	"context"
	"net/http"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/gateway"
	"github.com/tomtom215/edgeguard/internal/identity"
	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/metrics"
)

// Error codes.
const (
	CodeForbidden         = "FORBIDDEN"
	CodeInvalidAssertion  = "INVALID_IDENTITY_ASSERTION"
	CodeAuthorizationFail = "AUTHORIZATION_ERROR"
)

// Auditor records denied requests. *audit.Logger satisfies it.
type Auditor interface {
	LogEvent(ctx context.Context, eventType audit.EventType, in audit.EventInput) string
}

// Middleware authorizes requests against an Enforcer.
type Middleware struct {
	enforcer *Enforcer
	auditor  Auditor
}

// NewMiddleware returns authorization middleware. auditor may be nil.
func NewMiddleware(enforcer *Enforcer, auditor Auditor) *Middleware {
	return &Middleware{enforcer: enforcer, auditor: auditor}
}

// Authorize checks the request path and method against the policy. It
// reads the identity placed on the context by the gateway or by
// identity.Resolver.Middleware.
func (m *Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, _ := identity.FromContext(ctx)
		if id.AssertionRejected {
			metrics.AuthzDecisions.WithLabelValues("invalid_assertion").Inc()
			m.deny(ctx, r, id, "invalid identity assertion")
			gateway.WriteError(w, http.StatusUnauthorized, CodeInvalidAssertion,
				"The identity assertion could not be verified.")
			return
		}

		action := ActionFor(r.Method)
		allowed, err := m.enforcer.EnforceWithRoles(id.UserID, id.Roles, r.URL.Path, action)
		if err != nil {
			metrics.AuthzDecisions.WithLabelValues("error").Inc()
			logging.Ctx(ctx).Error().Err(err).Msg("Authorization error")
			gateway.WriteError(w, http.StatusInternalServerError, CodeAuthorizationFail,
				"Authorization could not be evaluated.")
			return
		}
		if !allowed {
			metrics.AuthzDecisions.WithLabelValues("denied").Inc()
			m.deny(ctx, r, id, "insufficient role")
			gateway.WriteError(w, http.StatusForbidden, CodeForbidden,
				"Your role does not permit "+action+" access to this resource.")
			return
		}

		metrics.AuthzDecisions.WithLabelValues("allowed").Inc()
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) deny(ctx context.Context, r *http.Request, id identity.Identity, reason string) {
	logging.Ctx(ctx).Warn().Str("path", logging.SanitizeValue(r.URL.Path)).Str("method", r.Method).
		Str("reason", reason).Msg("Request not authorized")
	if m.auditor == nil {
		return
	}
	m.auditor.LogEvent(ctx, audit.EventPermissionDenied, audit.EventInput{
		RiskLevel: audit.RiskMedium,
		Source:    "authz",
		IPAddress: id.IP,
		UserID:    id.UserID,
		Outcome:   audit.OutcomeFailure,
		Details: audit.Details{
			"path":   audit.StringValue(r.URL.Path),
			"method": audit.StringValue(r.Method),
			"reason": audit.StringValue(reason),
		},
		Tags: []string{"authz"},
	})
}
