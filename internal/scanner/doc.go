// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

/*
Package scanner checks HTTP targets for common web security weaknesses and
keeps a registry of what it found.

Checks:
  - headers: Content-Security-Policy, HSTS (https only), X-Frame-Options or
    frame-ancestors, X-Content-Type-Options, Referrer-Policy
  - cookies: Secure, HttpOnly and SameSite on every Set-Cookie
  - tls: plain HTTP, TLS below 1.2, certificates expiring within 14 days
  - errors: stack traces or framework error pages on an unknown path
  - banner: versioned Server header, X-Powered-By and similar
  - cors: wildcard origin with credentials, reflected origins
  - files: /.git/config, /.env and /server-status (aggressive scans only)

QuickScan runs everything except the file checks against one URL inline.
RunScan crawls each target's same-host links to the requested depth and
collects failed checks as warnings instead of failing the scan. JobRunner
queues full scans for a worker pool so HTTP handlers never block on them.

Outbound requests are paced per host with golang.org/x/time/rate and pass
through a per-host gobreaker circuit breaker.

The Registry de-duplicates findings by (type, location) unless it runs in
ModeAppend, reopens resolved findings that are seen again, emits audit
events for discoveries and status changes, and can be persisted to
BadgerDB with BadgerStore.
*/
package scanner
