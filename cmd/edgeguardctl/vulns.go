// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/edgeguard/internal/scanner"
)

func newVulnsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vulns",
		Aliases: []string{"vulnerabilities"},
		Short:   "List and triage recorded vulnerabilities",
	}
	cmd.AddCommand(newVulnsListCmd(root), newVulnsSetStatusCmd(root))
	return cmd
}

func newVulnsListCmd(root *rootOptions) *cobra.Command {
	var status, severity string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List vulnerabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := root.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
			defer cancel()

			list, err := c.Vulnerabilities(ctx, scanner.Status(status), scanner.Severity(severity))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "open, acknowledged or resolved")
	cmd.Flags().StringVar(&severity, "severity", "", "critical, high, medium or low")
	return cmd
}

func newVulnsSetStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <id> <open|acknowledged|resolved>",
		Short: "Move a vulnerability to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
			defer cancel()

			v, err := c.SetVulnerabilityStatus(ctx, args[0], scanner.Status(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", v.ID, v.Status)
			return nil
		},
	}
}
