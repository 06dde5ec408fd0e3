// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads goldenclean configuration from defaults, a strict YAML
// file, an optional .env file and GOLDENCLEAN_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	Backend     BackendConfig     `yaml:"backend"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Location    LocationConfig    `yaml:"location"`
	Agent       AgentConfig       `yaml:"agent"`
	Log         LogConfig         `yaml:"log"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type BackendConfig struct {
	BaseURL          string        `yaml:"baseURL"`
	WSURL            string        `yaml:"wsURL"`
	Timeout          time.Duration `yaml:"timeout"`
	RateLimitRPS     float64       `yaml:"rateLimitRPS"`
	RateLimitBurst   int           `yaml:"rateLimitBurst"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

type CredentialsConfig struct {
	Backend string      `yaml:"backend"` // file, sqlite, badger, redis, memory
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type DispatchConfig struct {
	Window       int           `yaml:"window"` // countdown seconds
	TickInterval time.Duration `yaml:"tickInterval"`
	MaxQueue     int           `yaml:"maxQueue"`
	Cue          string        `yaml:"cue"` // bell, none
}

type LocationConfig struct {
	Mode     string        `yaml:"mode"` // static, denied
	Lat      float64       `yaml:"lat"`
	Lng      float64       `yaml:"lng"`
	Interval time.Duration `yaml:"interval"`
}

type AgentConfig struct {
	Addr      string `yaml:"addr"` // empty disables the agent API
	RateLimit int    `yaml:"rateLimit"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter"` // grpc, http
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sampleRate"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:          "http://localhost:8000/api/",
			WSURL:            "ws://localhost:8000/ws/employees/",
			Timeout:          10 * time.Second,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Credentials: CredentialsConfig{
			Backend: "file",
			Path:    filepath.Join(defaultDataDir(), "credentials.json"),
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "goldenclean:"},
		},
		Dispatch: DispatchConfig{
			Window:       15,
			TickInterval: time.Second,
			MaxQueue:     64,
			Cue:          "bell",
		},
		Location: LocationConfig{
			Mode:     "denied",
			Interval: 30 * time.Second,
		},
		Agent: AgentConfig{
			Addr:      "127.0.0.1:8088",
			RateLimit: 120,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Telemetry: TelemetryConfig{
			Exporter:   "grpc",
			Endpoint:   "localhost:4317",
			SampleRate: 1.0,
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "goldenclean")
	}
	return ".goldenclean"
}
