// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader loads configuration with precedence Env > .env > File > Defaults.
type Loader struct {
	configPath string
	envFile    string
}

// NewLoader creates a loader. Empty paths skip the corresponding source.
func NewLoader(configPath, envFile string) *Loader {
	return &Loader{configPath: configPath, envFile: envFile}
}

// Path returns the YAML file path, if any.
func (l *Loader) Path() string { return l.configPath }

// Load builds and validates the configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	// godotenv.Load never overrides variables already present in the environment.
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load env file %s: %w", l.envFile, err)
		}
	}

	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg with STRICT parsing: unknown keys are fatal.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func mergeEnv(cfg *Config) {
	b := &cfg.Backend
	b.BaseURL = ParseString(EnvPrefix+"BASE_URL", b.BaseURL)
	b.WSURL = ParseString(EnvPrefix+"WS_URL", b.WSURL)
	b.Timeout = ParseDuration(EnvPrefix+"TIMEOUT", b.Timeout)
	b.RateLimitRPS = ParseFloat(EnvPrefix+"RATE_LIMIT_RPS", b.RateLimitRPS)
	b.RateLimitBurst = ParseInt(EnvPrefix+"RATE_LIMIT_BURST", b.RateLimitBurst)
	b.BreakerThreshold = ParseInt(EnvPrefix+"BREAKER_THRESHOLD", b.BreakerThreshold)
	b.BreakerReset = ParseDuration(EnvPrefix+"BREAKER_RESET", b.BreakerReset)

	c := &cfg.Credentials
	c.Backend = ParseString(EnvPrefix+"CREDENTIALS_BACKEND", c.Backend)
	c.Path = ParseString(EnvPrefix+"CREDENTIALS_PATH", c.Path)
	c.Redis.Addr = ParseString(EnvPrefix+"REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = ParseString(EnvPrefix+"REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = ParseInt(EnvPrefix+"REDIS_DB", c.Redis.DB)
	c.Redis.Prefix = ParseString(EnvPrefix+"REDIS_PREFIX", c.Redis.Prefix)

	d := &cfg.Dispatch
	d.Window = ParseInt(EnvPrefix+"OFFER_WINDOW", d.Window)
	d.TickInterval = ParseDuration(EnvPrefix+"OFFER_TICK", d.TickInterval)
	d.MaxQueue = ParseInt(EnvPrefix+"OFFER_MAX_QUEUE", d.MaxQueue)
	d.Cue = ParseString(EnvPrefix+"CUE", d.Cue)

	loc := &cfg.Location
	loc.Mode = ParseString(EnvPrefix+"LOCATION_MODE", loc.Mode)
	loc.Lat = ParseFloat(EnvPrefix+"LOCATION_LAT", loc.Lat)
	loc.Lng = ParseFloat(EnvPrefix+"LOCATION_LNG", loc.Lng)
	loc.Interval = ParseDuration(EnvPrefix+"LOCATION_INTERVAL", loc.Interval)

	cfg.Agent.Addr = ParseString(EnvPrefix+"AGENT_ADDR", cfg.Agent.Addr)
	cfg.Agent.RateLimit = ParseInt(EnvPrefix+"AGENT_RATE_LIMIT", cfg.Agent.RateLimit)

	lg := &cfg.Log
	lg.Level = ParseString(EnvPrefix+"LOG_LEVEL", lg.Level)
	lg.File = ParseString(EnvPrefix+"LOG_FILE", lg.File)

	tel := &cfg.Telemetry
	tel.Enabled = ParseBool(EnvPrefix+"TELEMETRY_ENABLED", tel.Enabled)
	tel.Exporter = ParseString(EnvPrefix+"OTLP_EXPORTER", tel.Exporter)
	tel.Endpoint = ParseString(EnvPrefix+"OTLP_ENDPOINT", tel.Endpoint)
	tel.SampleRate = ParseFloat(EnvPrefix+"TRACE_SAMPLE_RATE", tel.SampleRate)
}
