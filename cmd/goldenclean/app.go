// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/goldenclean/internal/backend"
	"github.com/ManuGH/goldenclean/internal/config"
	"github.com/ManuGH/goldenclean/internal/credentials"
	xglog "github.com/ManuGH/goldenclean/internal/log"
	"github.com/ManuGH/goldenclean/internal/platform/httpx"
	"github.com/ManuGH/goldenclean/internal/telemetry"
	"github.com/ManuGH/goldenclean/internal/transport"
	"github.com/ManuGH/goldenclean/internal/version"
)

// app carries the per-invocation wiring shared by every subcommand.
type app struct {
	configPath string
	envFile    string
	agent      agentFlags

	loader  *config.Loader
	cfg     config.Config
	store   credentials.Store
	client  *transport.Client
	api     *backend.Client
	tracing *telemetry.Provider
}

// run bootstraps the app around fn and releases it afterwards, whether fn
// fails or not.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.bootstrap(cmd.Context()); err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, args)
	}
}

func (a *app) bootstrap(ctx context.Context) error {
	a.loader = config.NewLoader(a.configPath, a.envFile)
	cfg, err := a.loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	xglog.Configure(xglog.Config{
		Level:      cfg.Log.Level,
		Output:     os.Stderr,
		Service:    "goldenclean",
		Version:    version.Version,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	// Configure applies once per process; the level still follows the config.
	_ = xglog.SetLevel(cfg.Log.Level)
	logger := xglog.WithComponent("cli")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "goldenclean",
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.tracing = tp

	store, err := credentials.Open(credentials.Options{
		Backend: cfg.Credentials.Backend,
		Path:    cfg.Credentials.Path,
		Redis: credentials.RedisConfig{
			Addr:     cfg.Credentials.Redis.Addr,
			Password: cfg.Credentials.Redis.Password,
			DB:       cfg.Credentials.Redis.DB,
			Prefix:   cfg.Credentials.Redis.Prefix,
		},
	})
	if err != nil {
		a.close()
		return fmt.Errorf("open credential store: %w", err)
	}
	a.store = store

	tc, err := transport.New(cfg.Backend.BaseURL, store,
		transport.WithHTTPClient(httpx.NewClient(cfg.Backend.Timeout)),
		transport.WithRateLimit(cfg.Backend.RateLimitRPS, cfg.Backend.RateLimitBurst),
		transport.WithCircuitBreaker(transport.NewCircuitBreaker(cfg.Backend.BreakerThreshold, cfg.Backend.BreakerReset)),
	)
	if err != nil {
		a.close()
		return err
	}
	a.client = tc
	a.api = backend.New(tc, store)

	logger.Debug().
		Str(xglog.FieldBaseURL, cfg.Backend.BaseURL).
		Str("credentials", cfg.Credentials.Backend).
		Msg("client ready")
	return nil
}

func (a *app) close() {
	logger := xglog.WithComponent("cli")
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close credential store")
		}
		a.store = nil
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("failed to flush traces")
		}
		a.tracing = nil
	}
	_ = xglog.Close()
}
