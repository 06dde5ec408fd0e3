// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/goldenclean/internal/credentials"
)

var errStoreCorrupt = errors.New("credential store failed integrity check")

func newStoreCmd(a *app) *cobra.Command {
	store := &cobra.Command{
		Use:   "store",
		Short: "Inspect the local credential store",
	}

	var full bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Verify the credential store and report whether a login is present",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend: %s\n", a.cfg.Credentials.Backend)

			if sq, ok := a.store.(*credentials.SqliteStore); ok {
				problems, err := sq.Check(cmd.Context(), full)
				if err != nil {
					return err
				}
				for _, p := range problems {
					fmt.Fprintf(out, "integrity: %s\n", p)
				}
				if len(problems) > 0 {
					return errStoreCorrupt
				}
				fmt.Fprintln(out, "integrity: ok")
			}

			pair, err := credentials.Load(cmd.Context(), a.store)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "access token: %s\n", presence(pair.AccessToken))
			fmt.Fprintf(out, "refresh token: %s\n", presence(pair.RefreshToken))
			return nil
		}),
	}
	check.Flags().BoolVar(&full, "full", false, "run a full integrity check instead of a quick one (sqlite)")

	store.AddCommand(check)
	return store
}

func presence(token string) string {
	if token == "" {
		return "missing"
	}
	return "present"
}
