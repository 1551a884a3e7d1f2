// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the aggregated security status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := root.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
			defer cancel()

			snap, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), snap)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:   %s (score %d)\n", strings.ToUpper(string(snap.Status)), snap.SecurityScore)
			fmt.Fprintf(out, "Summary:  %s\n", snap.Summary.Message)
			for _, risk := range snap.Summary.TopRisks {
				fmt.Fprintf(out, "  - %s\n", risk)
			}
			for _, se := range snap.Errors {
				fmt.Fprintf(out, "Warning:  %s unavailable: %s\n", se.Source, se.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full snapshot as JSON")
	return cmd
}
