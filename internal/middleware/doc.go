// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package middleware holds router-wide HTTP middleware: request ids with
// logging context, Prometheus instrumentation keyed by route pattern, and
// API security headers. Per-route enforcement lives in package gateway.
package middleware
