// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/edgeguard/internal/client"
	"github.com/tomtom215/edgeguard/internal/identity"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

type rootOptions struct {
	server         string
	timeout        time.Duration
	identityHeader string
	identitySecret string
	subject        string
	roles          []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "edgeguardctl",
		Short:         "Operate an EdgeGuard security gateway",
		Long:          `edgeguardctl runs vulnerability scans, exports the audit log and reports the security status of an EdgeGuard server.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultServer := os.Getenv("EDGEGUARD_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", defaultServer, "EdgeGuard base URL (env EDGEGUARD_URL)")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "overall command timeout")
	flags.StringVar(&opts.identityHeader, "identity-header", "X-Edge-Identity", "header carrying the identity assertion")
	flags.StringVar(&opts.identitySecret, "identity-secret", os.Getenv("EDGEGUARD_IDENTITY_SECRET"), "HS256 secret used to sign an identity assertion (env EDGEGUARD_IDENTITY_SECRET)")
	flags.StringVar(&opts.subject, "subject", "edgeguardctl", "identity assertion subject")
	flags.StringSliceVar(&opts.roles, "role", []string{"admin"}, "identity assertion roles")

	cmd.AddCommand(
		newScanCmd(opts),
		newAuditCmd(opts),
		newVulnsCmd(opts),
		newStatusCmd(opts),
	)
	return cmd
}

// client builds an API client from the persistent flags.
func (o *rootOptions) client() (*client.Client, error) {
	co := client.Options{}
	if o.identitySecret != "" {
		token, err := identity.SignAssertion([]byte(o.identitySecret), o.subject, o.roles, o.timeout+time.Minute)
		if err != nil {
			return nil, fmt.Errorf("sign identity assertion: %w", err)
		}
		co.IdentityHeader = o.identityHeader
		co.IdentityToken = token
	}
	return client.New(o.server, co)
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
