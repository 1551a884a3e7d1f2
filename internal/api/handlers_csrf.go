// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package api

import (
	"net/http"

	"github.com/tomtom215/edgeguard/internal/csrf"
)

// handleCSRFToken godoc
// @Summary Issue a CSRF token
// @Description Returns a fresh token, sets the csrf-token cookie and echoes the token in X-CSRF-Token. A previous token presented in the cookie is invalidated.
// @Tags CSRF
// @Produce json
// @Success 200 {object} csrf.Token
// @Failure 404 {object} gateway.ErrorBody "CSRF protection disabled"
// @Failure 429 {object} gateway.ErrorBody
// @Router /csrf-token [get]
func (rt *Router) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	guard := rt.deps.Guard
	if guard == nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "CSRF protection is disabled.", nil)
		return
	}
	ctx := r.Context()

	// The gateway issues a token on safe requests without a live cookie.
	if v := w.Header().Get(csrf.HeaderName); v != "" {
		respondJSON(w, http.StatusOK, csrf.Token{Value: v, ExpiresAt: rt.now().Add(guard.TTL()).UTC()})
		return
	}

	_, previous := csrf.Tokens(r)
	tok, err := guard.Issue(ctx)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Could not issue a CSRF token.", err)
		return
	}
	if previous != "" {
		if err := guard.Invalidate(ctx, previous); err != nil {
			respondError(w, r, http.StatusInternalServerError, CodeInternal, "Could not rotate the CSRF token.", err)
			return
		}
	}
	guard.SetCookie(w, tok)
	w.Header().Set(csrf.HeaderName, tok.Value)
	respondJSON(w, http.StatusOK, tok)
}
