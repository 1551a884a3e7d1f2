// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package api is the EdgeGuard HTTP surface: the chi router, the security
// endpoints under /api/v1/security, health checks, metrics and the Swagger
// UI.
//
// Every security endpoint is wrapped by a gateway.Route with its own rate
// limit rule, so each response carries X-RateLimit-* headers and
// state-changing requests must present a CSRF token. When authorization is
// enabled the authz middleware runs inside the gateway, after the identity
// has been resolved.
//
// Errors use the {error, message} body with stable upper-snake codes.
// Internal details are logged, never returned.
package api
