// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/edgeguard/internal/api"
	"github.com/tomtom215/edgeguard/internal/scanner"
)

func newScanCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run vulnerability scans",
	}
	cmd.AddCommand(newScanQuickCmd(root), newScanFullCmd(root), newScanJobCmd(root), newScanCancelCmd(root))
	return cmd
}

func newScanQuickCmd(root *rootOptions) *cobra.Command {
	var warnings bool
	cmd := &cobra.Command{
		Use:   "quick <url>",
		Short: "Check the security headers of one URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
			defer cancel()

			if warnings {
				report, err := c.QuickScanReport(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			}
			vulns, err := c.QuickScan(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), vulns)
		},
	}
	cmd.Flags().BoolVar(&warnings, "warnings", false, "also print the checks that failed")
	return cmd
}

func newScanFullCmd(root *rootOptions) *cobra.Command {
	var (
		depth       int
		timeoutSecs int
		aggressive  bool
		noSSL       bool
		noRedirects bool
		checks      []string
	)
	cmd := &cobra.Command{
		Use:   "full <url>...",
		Short: "Run every check against one or more targets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
			defer cancel()

			checkSSL, follow := !noSSL, !noRedirects
			req := api.ScanRequest{
				Targets:         args,
				Depth:           depth,
				Timeout:         timeoutSecs,
				Aggressive:      aggressive,
				CheckSSL:        &checkSSL,
				FollowRedirects: &follow,
			}
			for _, ch := range checks {
				req.ScanTypes = append(req.ScanTypes, scanner.ScanType(ch))
			}
			result, err := c.FullScan(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	f := cmd.Flags()
	f.IntVar(&depth, "depth", 0, "crawl depth (0 uses the server default)")
	f.IntVar(&timeoutSecs, "scan-timeout", 0, "server-side scan timeout in seconds")
	f.BoolVar(&aggressive, "aggressive", false, "check for exposed sensitive files")
	f.BoolVar(&noSSL, "no-ssl", false, "skip the TLS checks")
	f.BoolVar(&noRedirects, "no-redirects", false, "do not follow redirects")
	f.StringSliceVar(&checks, "checks", nil, "restrict to these checks (headers,cookies,tls,errors,banner,cors,files)")
	return cmd
}

func newScanJobCmd(root *rootOptions) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "job <id>",
		Short: "Show a scan job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
			defer cancel()

			var job scanner.Job
			if wait {
				job, err = c.WaitJob(ctx, args[0])
			} else {
				job, err = c.Job(ctx, args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the job finishes")
	return cmd
}

func newScanCancelCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued or running scan job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.client()
			if err != nil {
				return err
			}
			job, err := c.CancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", job.ID, job.Status)
			return nil
		},
	}
}
