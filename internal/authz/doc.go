// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package authz guards the administrative endpoints with Casbin RBAC.
//
// EdgeGuard does not log anyone in. Roles come from the upstream identity
// assertion resolved by package identity; requests without one are treated
// as the configured default role.
//
// # Model
//
// The embedded model grants an action on a path pattern to a role, with role
// inheritance:
//
//	m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
//
// Actions are read (GET, HEAD, OPTIONS), write (POST, PUT, PATCH) and delete.
//
// # Policy
//
// The embedded policy.csv defines viewer < analyst < operator < admin plus an
// ingest role for services that report audit events. Set
// security.authz.policy_path to use a file instead; it is reloaded
// periodically.
package authz
