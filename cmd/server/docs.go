// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package main provides the EdgeGuard HTTP server
//
// @title EdgeGuard API
// @version 1.0
// @description Edge security gateway placed in front of application routes.
// @description
// @description ## Rate Limiting
// @description
// @description Every protected route has its own fixed-window budget per client.
// @description Responses carry `X-RateLimit-Limit`, `X-RateLimit-Remaining` and `X-RateLimit-Reset` (unix seconds).
// @description A rejected request receives 429 with `Retry-After`.
// @description
// @description ## CSRF
// @description
// @description State-changing requests must echo the `csrf_token` cookie in the `X-CSRF-Token` header.
// @description Obtain a token from `GET /api/v1/csrf-token` or from any GET through the gateway.
// @description
// @description ## Error Responses
// @description
// @description ```json
// @description { "error": "CSRF_TOKEN_MISSING", "message": "Human-readable remediation hint" }
// @description ```
//
// @contact.name GitHub Repository
// @contact.url https://github.com/tomtom215/edgeguard/issues
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
//
// @securityDefinitions.apikey CSRFToken
// @in header
// @name X-CSRF-Token
//
// @tag.name CSRF
// @tag.description CSRF token issuance
//
// @tag.name Audit
// @tag.description Security audit log ingest, query, export and statistics
//
// @tag.name Scanner
// @tag.description Vulnerability scans, scan jobs and the vulnerability registry
//
// @tag.name Status
// @tag.description Aggregated security posture
package main
