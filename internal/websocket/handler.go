// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/gateway"
	"github.com/tomtom215/edgeguard/internal/logging"
)

// Handler upgrades stream requests and registers the client with the hub.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler returns the stream endpoint. checkOrigin decides which
// browser origins may connect; nil accepts only same-origin requests.
func NewHandler(hub *Hub, checkOrigin func(*http.Request) bool) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	minRisk := audit.RiskLow
	if v := r.URL.Query().Get("minRisk"); v != "" {
		minRisk = audit.RiskLevel(v)
		if !minRisk.Valid() {
			gateway.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"minRisk must be one of: low medium high critical")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := newClient(h.hub, conn, minRisk)
	h.hub.register <- c
	go c.writePump()
	go c.readPump()
}
