// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Command edgeguardctl is the EdgeGuard operator CLI.
//
//	edgeguardctl scan quick https://app.example.com
//	edgeguardctl scan full https://app.example.com https://api.example.com --depth 2
//	edgeguardctl audit export --format csv --start 2026-01-01T00:00:00Z -o audit.csv
//	edgeguardctl vulns list --status open
//	edgeguardctl status
//
// The server is taken from --server or EDGEGUARD_URL. When authorization is
// enabled on the server, --identity-secret signs an identity assertion for
// --subject with the given --role values.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
