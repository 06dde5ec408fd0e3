// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAddressesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "addresses",
		Short: "List your registered addresses",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return printAddresses(cmd, a)
		}),
	}
}

func printAddresses(cmd *cobra.Command, a *app) error {
	addrs, err := a.api.Addresses(cmd.Context())
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No addresses registered")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tADDRESS")
	for _, addr := range addrs {
		fmt.Fprintf(tw, "%d\t%s\n", addr.ID, addr)
	}
	return tw.Flush()
}

func newRequestCmd(a *app) *cobra.Command {
	var (
		addressID   int
		description string
	)

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a cleaning service at one of your addresses",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			resp, err := a.api.RequestService(cmd.Context(), addressID, description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service request %d created (%s)\n", resp.ID, resp.Status)
			return nil
		}),
	}

	cmd.Flags().IntVarP(&addressID, "address", "a", 0, "address ID (see 'addresses')")
	cmd.Flags().StringVarP(&description, "description", "d", "", "what needs to be done")
	return cmd
}
