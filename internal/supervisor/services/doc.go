// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

/*
Package services adapts EdgeGuard components that do not already speak
suture's Serve(ctx) error contract.

The scan job runner, websocket hub and audit stream subscriber implement
suture.Service directly and are added to the tree as they are. The HTTP
server needs HTTPServerService to translate ListenAndServe/Shutdown into a
context-driven lifecycle.
*/
package services
