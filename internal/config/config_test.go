// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Dispatch.Window)
	assert.Equal(t, 30*time.Second, cfg.Location.Interval)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "file", cfg.Credentials.Backend)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "goldenclean.yaml", `
backend:
  baseURL: http://192.168.0.200:8000/api/
  wsURL: ws://192.168.0.200:8000/ws/employees/
dispatch:
  window: 20
  cue: none
location:
  mode: static
  lat: -33.45
  lng: -70.66
credentials:
  backend: sqlite
  path: `+filepath.Join(dir, "creds.db")+`
`)

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, "http://192.168.0.200:8000/api/", cfg.Backend.BaseURL)
	assert.Equal(t, 20, cfg.Dispatch.Window)
	assert.Equal(t, "none", cfg.Dispatch.Cue)
	assert.Equal(t, "static", cfg.Location.Mode)
	assert.InDelta(t, -33.45, cfg.Location.Lat, 1e-9)
	assert.Equal(t, "sqlite", cfg.Credentials.Backend)
	assert.Equal(t, time.Second, cfg.Dispatch.TickInterval, "untouched keys keep defaults")
}

func TestLoad_StrictUnknownField(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "dispatch:\n  windw: 20\n")
	_, err := NewLoader(path, "").Load()
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoad_RejectsNonYAMLAndMultiDoc(t *testing.T) {
	dir := t.TempDir()
	_, err := NewLoader(writeFile(t, dir, "c.json", "{}"), "").Load()
	assert.Error(t, err)

	_, err = NewLoader(writeFile(t, dir, "m.yaml", "log:\n  level: info\n---\nlog:\n  level: debug\n"), "").Load()
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := NewLoader(writeFile(t, t.TempDir(), "empty.yaml", ""), "").Load()
	require.NoError(t, err)
	if diff := cmp.Diff(Defaults(), cfg); diff != "" {
		t.Errorf("empty file changed defaults (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "dispatch:\n  window: 20\n")
	t.Setenv("GOLDENCLEAN_OFFER_WINDOW", "30")
	t.Setenv("GOLDENCLEAN_LOCATION_INTERVAL", "45s")
	t.Setenv("GOLDENCLEAN_TELEMETRY_ENABLED", "true")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Dispatch.Window)
	assert.Equal(t, 45*time.Second, cfg.Location.Interval)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("GOLDENCLEAN_OFFER_WINDOW", "soon")
	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Dispatch.Window)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "GOLDENCLEAN_AGENT_ADDR=127.0.0.1:9999\nGOLDENCLEAN_CUE=none\n")
	t.Setenv("GOLDENCLEAN_CUE", "bell")
	t.Cleanup(func() { _ = os.Unsetenv("GOLDENCLEAN_AGENT_ADDR") })

	cfg, err := NewLoader("", envFile).Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Agent.Addr)
	assert.Equal(t, "bell", cfg.Dispatch.Cue)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	_, err := NewLoader("", filepath.Join(t.TempDir(), "absent.env")).Load()
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http websocket url", func(c *Config) { c.Backend.WSURL = "http://host/ws/" }},
		{"ws base url", func(c *Config) { c.Backend.BaseURL = "ws://host/api/" }},
		{"zero window", func(c *Config) { c.Dispatch.Window = 0 }},
		{"unknown cue", func(c *Config) { c.Dispatch.Cue = "siren" }},
		{"unknown store", func(c *Config) { c.Credentials.Backend = "s3" }},
		{"redis without addr", func(c *Config) { c.Credentials.Backend = "redis"; c.Credentials.Redis.Addr = "" }},
		{"static out of range", func(c *Config) { c.Location.Mode = "static"; c.Location.Lat = 120 }},
		{"fast location interval", func(c *Config) { c.Location.Interval = 10 * time.Millisecond }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"telemetry exporter", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestHolder_ReloadKeepsPreviousOnError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "log:\n  level: info\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	updates := make(chan Config, 1)
	h.RegisterListener(updates)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	require.NoError(t, h.Reload())
	assert.Equal(t, "debug", h.Get().Log.Level)
	assert.Equal(t, "debug", (<-updates).Log.Level)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: nope\n"), 0o600))
	assert.Error(t, h.Reload())
	assert.Equal(t, "debug", h.Get().Log.Level)
	assert.Empty(t, updates)
}

func TestHolder_WatchReloadsOnWrite(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "log:\n  level: info\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	// Keep rewriting until the watcher has been installed and picks it up.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600)
		return h.Get().Log.Level == "warn"
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestHolder_WatchWithoutFile(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", ""))
	assert.NoError(t, h.Watch(context.Background()))
}
