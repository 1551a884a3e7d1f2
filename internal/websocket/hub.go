// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/metrics"
)

// Message types.
const (
	MessageTypeAuditEvent = "audit_event"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
)

// Message is one frame sent to clients.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`

	// risk drives per-client filtering and is not sent.
	risk audit.RiskLevel
}

var riskRank = map[audit.RiskLevel]int{
	audit.RiskLow:      1,
	audit.RiskMedium:   2,
	audit.RiskHigh:     3,
	audit.RiskCritical: 4,
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub returns an idle hub; Serve runs it.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
	}
}

// String implements fmt.Stringer for suture logs.
func (h *Hub) String() string { return "websocket-hub" }

// Serve runs the hub until ctx is cancelled, then disconnects every client.
// Lifecycle events are handled before broadcasts so a client never receives
// a message after it has been unregistered.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			n := h.ClientCount()
			h.closeAll()
			logging.Info().Str("component", "websocket-hub").Int("clients_closed", n).Msg("Websocket hub stopped")
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Debug().Uint64("client", c.id).Int("total_clients", n).Msg("Websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Debug().Uint64("client", c.id).Int("total_clients", n).Msg("Websocket client disconnected")
}

// deliver sends msg to every interested client in connection order. Clients
// with a full buffer are dropped.
func (h *Hub) deliver(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.sorted()
	for _, c := range clients {
		if msg.risk != "" && riskRank[msg.risk] < riskRank[c.minRisk] {
			continue
		}
		select {
		case c.send <- msg:
		default:
			logging.Warn().Uint64("client", c.id).Msg("Websocket client too slow, disconnecting")
			close(c.send)
			delete(h.clients, c)
		}
	}
	metrics.WSConnections.Set(float64(len(h.clients)))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.sorted() {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.WSConnections.Set(0)
}

// sorted returns clients by id. Callers hold h.mu.
func (h *Hub) sorted() []*Client {
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastAuditEvent queues a stored audit event, given as its JSON
// encoding, for delivery. It never blocks; a full queue drops the event.
func (h *Hub) BroadcastAuditEvent(payload []byte, risk audit.RiskLevel) {
	h.enqueue(Message{Type: MessageTypeAuditEvent, Data: json.RawMessage(payload), risk: risk})
}

func (h *Hub) enqueue(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().Str("message_type", msg.Type).Msg("Websocket broadcast queue full, dropping message")
	}
}
