// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/goldenclean/internal/log"
)

// EnvPrefix namespaces every environment variable read by the loader.
const EnvPrefix = "GOLDENCLEAN_"

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password")
}

// ParseString reads key from the environment, falling back to defaultValue
// when unset or empty.
func ParseString(key, defaultValue string) string {
	logger := xglog.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if isSensitive(key) {
		ev.Bool("sensitive", true)
	} else {
		ev.Str("value", v)
	}
	ev.Msg("using environment variable")
	return v
}

// ParseInt reads an integer, falling back to defaultValue on absence or parse errors.
func ParseInt(key string, defaultValue int) int {
	return parseWith(key, defaultValue, strconv.Atoi)
}

// ParseFloat reads a float64, falling back to defaultValue on absence or parse errors.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseWith(key, defaultValue, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// ParseDuration reads a Go duration ("30s"), falling back to defaultValue.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseWith(key, defaultValue, time.ParseDuration)
}

// ParseBool reads a boolean, falling back to defaultValue.
func ParseBool(key string, defaultValue bool) bool {
	return parseWith(key, defaultValue, strconv.ParseBool)
}

func parseWith[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return defaultValue
	}
	logger := xglog.WithComponent("config")
	parsed, err := parse(strings.TrimSpace(v))
	if err != nil {
		warnInvalid(logger, key, v, err)
		return defaultValue
	}
	logger.Debug().Str("key", key).Str("source", "environment").Msg("using environment variable")
	return parsed
}

func warnInvalid(logger zerolog.Logger, key, value string, err error) {
	logger.Warn().
		Err(err).
		Str("key", key).
		Str("value", value).
		Str("source", "default").
		Msg("invalid environment variable, using default")
}
