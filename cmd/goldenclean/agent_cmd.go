// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ManuGH/goldenclean/internal/agentapi"
	"github.com/ManuGH/goldenclean/internal/config"
	"github.com/ManuGH/goldenclean/internal/cue"
	"github.com/ManuGH/goldenclean/internal/dispatch"
	"github.com/ManuGH/goldenclean/internal/location"
	xglog "github.com/ManuGH/goldenclean/internal/log"
	"github.com/ManuGH/goldenclean/internal/session"
)

type agentFlags struct {
	interactive bool
}

func newAgentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the employee dispatch agent with the stored login",
		Long: `Connects to the dispatch channel, reports location and presents job
offers one at a time with a countdown. Offers are accepted through the local
agent API or, with --interactive, by pressing Enter.`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd, a)
		}),
	}
	cmd.Flags().BoolVarP(&a.agent.interactive, "interactive", "i", false, "accept the active offer by pressing Enter")
	return cmd
}

func runAgent(cmd *cobra.Command, a *app) error {
	ctx, cancel := context.WithCancel(cmd.Context())

	cfg := a.cfg
	logger := xglog.WithComponent("agent")

	holder := config.NewHolder(cfg, a.loader)
	updates := make(chan config.Config, 1)
	holder.RegisterListener(updates)

	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := holder.Watch(ctx); err != nil {
			logger.Warn().Err(err).Msg("config watcher unavailable")
		}
	}()
	go func() {
		defer wg.Done()
		applyReloads(ctx, updates)
	}()

	out := cmd.OutOrStdout()
	return session.RunEmployee(ctx, session.EmployeeOptions{
		WSURL:            cfg.Backend.WSURL,
		Store:            a.store,
		Refresher:        a.client,
		Locator:          locatorFor(cfg.Location),
		LocationInterval: cfg.Location.Interval,
		Dispatch: dispatch.Config{
			Window:       cfg.Dispatch.Window,
			TickInterval: cfg.Dispatch.TickInterval,
			MaxQueue:     cfg.Dispatch.MaxQueue,
		},
		Cue: cue.NewHandle(cueFor(cfg.Dispatch.Cue, cmd.ErrOrStderr())),
		Agent: agentapi.Config{
			Addr:           cfg.Agent.Addr,
			RateLimit:      cfg.Agent.RateLimit,
			TracingService: "goldenclean-agent",
		},
		Ready: func(h session.Handles) {
			fmt.Fprintf(out, "Agent running (session %s)\n", h.SessionID)
			if cfg.Agent.Addr != "" {
				fmt.Fprintf(out, "Agent API on http://%s\n", cfg.Agent.Addr)
			}
			snaps, _ := h.Dispatch.Subscribe()
			wg.Add(1)
			go func() {
				defer wg.Done()
				printOffers(out, snaps)
			}()
			if a.agent.interactive {
				// The stdin reader cannot be interrupted; it dies with the process.
				go acceptOnEnter(ctx, cmd.InOrStdin(), h.Dispatch)
			}
		},
	})
}

// applyReloads keeps the log level in step with the config file.
func applyReloads(ctx context.Context, updates <-chan config.Config) {
	logger := xglog.WithComponent("agent")
	for {
		select {
		case <-ctx.Done():
			return
		case next := <-updates:
			if err := xglog.SetLevel(next.Log.Level); err != nil {
				logger.Warn().Err(err).Str("level", next.Log.Level).Msg("ignoring invalid log level")
				continue
			}
			logger.Info().Str("level", next.Log.Level).Msg("log level applied")
		}
	}
}

func locatorFor(cfg config.LocationConfig) location.Locator {
	if cfg.Mode == "static" {
		return location.Static{Lat: cfg.Lat, Lng: cfg.Lng}
	}
	return location.Denied{}
}

func cueFor(kind string, out io.Writer) cue.Source {
	if kind == "bell" {
		return cue.Bell{Out: out}
	}
	return cue.Nop{}
}

// printOffers writes one line per newly active offer until snaps closes.
func printOffers(out io.Writer, snaps <-chan dispatch.Snapshot) {
	var current int64
	for snap := range snaps {
		if snap.Offer == nil {
			current = 0
			continue
		}
		if snap.Offer.ServiceID == current {
			continue
		}
		current = snap.Offer.ServiceID
		fmt.Fprintf(out, "Offer %d: %s (%ds to accept, %d queued)\n",
			snap.Offer.ServiceID, snap.Offer.Description, snap.Countdown, snap.Queued)
	}
}

func acceptOnEnter(ctx context.Context, in io.Reader, d *dispatch.Coordinator) {
	logger := xglog.WithComponent("agent")
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if strings.TrimSpace(scanner.Text()) != "" {
			continue
		}
		snap := d.Snapshot()
		if snap.Offer == nil {
			continue
		}
		if err := d.Accept(ctx, snap.Offer.ServiceID); err != nil {
			logger.Warn().Err(err).Int64(xglog.FieldServiceID, snap.Offer.ServiceID).Msg("accept failed")
		}
	}
}
