// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package websocket streams audit events to dashboard clients.
//
// The audit logger publishes every stored event on a watermill topic.
// Subscriber consumes that topic and hands each event to the Hub, which
// fans it out to connected clients. A client may ask for a minimum risk
// level with ?minRisk=high; lower-risk events are not sent to it.
//
// Both Hub and Subscriber are suture services. A client whose send buffer
// is full is disconnected rather than slowing down the others.
//
// Wire format:
//
//	{"type": "audit_event", "data": {...audit event...}}
//	{"type": "pong", "data": null}
package websocket
