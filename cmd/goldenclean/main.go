// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command goldenclean drives the Golden Clean backend from a terminal: login,
// client service requests, and the employee dispatch agent.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/goldenclean/internal/channel"
	"github.com/ManuGH/goldenclean/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "goldenclean",
		Short:         "Golden Clean dispatch client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("GOLDENCLEAN_CONFIG"), "path to YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file merged before environment variables")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newAddressesCmd(a),
		newRequestCmd(a),
		newAgentCmd(a),
		newStoreCmd(a),
		newVersionCmd(),
	)
	return root
}

// exitCode is 2 when the user has to log in again, 1 otherwise.
func exitCode(err error) int {
	if errors.Is(err, transport.ErrAuthExpired) || errors.Is(err, channel.ErrNoToken) {
		return 2
	}
	return 1
}
