// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/goldenclean/internal/validate"
)

// Validate checks a fully merged configuration.
func Validate(cfg Config) error {
	v := validate.New()

	v.URL("backend.baseURL", cfg.Backend.BaseURL, "http", "https")
	v.URL("backend.wsURL", cfg.Backend.WSURL, "ws", "wss")
	v.MinDuration("backend.timeout", cfg.Backend.Timeout, 100*time.Millisecond)
	if cfg.Backend.RateLimitRPS < 0 {
		v.AddError("backend.rateLimitRPS", "cannot be negative", cfg.Backend.RateLimitRPS)
	}
	v.Range("backend.breakerThreshold", cfg.Backend.BreakerThreshold, 0, 1000)

	v.OneOf("credentials.backend", cfg.Credentials.Backend, "file", "sqlite", "badger", "redis", "memory")
	switch cfg.Credentials.Backend {
	case "file", "sqlite", "badger":
		v.Path("credentials.path", cfg.Credentials.Path)
	case "redis":
		v.NotEmpty("credentials.redis.addr", cfg.Credentials.Redis.Addr)
	}

	v.Range("dispatch.window", cfg.Dispatch.Window, 1, 600)
	v.MinDuration("dispatch.tickInterval", cfg.Dispatch.TickInterval, time.Millisecond)
	v.Range("dispatch.maxQueue", cfg.Dispatch.MaxQueue, 1, 10000)
	v.OneOf("dispatch.cue", cfg.Dispatch.Cue, "bell", "none")

	v.OneOf("location.mode", cfg.Location.Mode, "static", "denied")
	if cfg.Location.Mode == "static" {
		v.FloatRange("location.lat", cfg.Location.Lat, -90, 90)
		v.FloatRange("location.lng", cfg.Location.Lng, -180, 180)
	}
	v.MinDuration("location.interval", cfg.Location.Interval, time.Second)

	if cfg.Agent.RateLimit < 0 {
		v.AddError("agent.rateLimit", "cannot be negative", cfg.Agent.RateLimit)
	}

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil || cfg.Log.Level == "" {
		v.AddError("log.level", "invalid log level (must be: trace, debug, info, warn, error)", cfg.Log.Level)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, "grpc", "http")
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.sampleRate", cfg.Telemetry.SampleRate, 0, 1)
	}

	return v.Err()
}
