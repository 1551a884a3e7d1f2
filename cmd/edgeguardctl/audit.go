// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tomtom215/edgeguard/internal/audit"
)

func newAuditCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Work with the security audit log",
	}
	cmd.AddCommand(newAuditExportCmd(root))
	return cmd
}

func newAuditExportCmd(root *rootOptions) *cobra.Command {
	var (
		format  string
		output  string
		types   string
		risk    string
		start   string
		end     string
		user    string
		ip      string
		outcome string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download audit events as json, csv or cef",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := audit.ParseFormat(format)
			if err != nil {
				return fmt.Errorf("--format %q: %w", format, err)
			}
			c, err := root.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
			defer cancel()

			q := url.Values{}
			for k, v := range map[string]string{
				"types": types, "risk": risk, "start": start, "end": end,
				"user": user, "ip": ip, "outcome": outcome,
			} {
				if v != "" {
					q.Set(k, v)
				}
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}

			data, err := c.ExportAudit(ctx, f, q)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(data), output)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&format, "format", "csv", "export format: json, csv or cef")
	fl.StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	fl.StringVar(&types, "types", "", "comma-separated event types")
	fl.StringVar(&risk, "risk", "", "comma-separated risk levels")
	fl.StringVar(&start, "start", "", "RFC 3339 lower bound")
	fl.StringVar(&end, "end", "", "RFC 3339 upper bound")
	fl.StringVar(&user, "user", "", "user id")
	fl.StringVar(&ip, "ip", "", "client IP")
	fl.StringVar(&outcome, "outcome", "", "success, failure or warning")
	fl.IntVar(&limit, "limit", 0, "maximum events (server caps at 10000)")
	return cmd
}
