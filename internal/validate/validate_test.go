// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_AccumulatesErrors(t *testing.T) {
	v := New()
	v.URL("backend.baseURL", "ftp://host/api/", "http", "https")
	v.URL("backend.wsURL", "ws:///no-host", "ws", "wss")
	v.Range("dispatch.window", 0, 1, 300)
	v.FloatRange("location.lat", 91, -90, 90)
	v.MinDuration("location.interval", time.Millisecond, time.Second)
	v.NotEmpty("agent.addr", "  ")
	v.OneOf("credentials.backend", "s3", "file", "memory")
	v.Path("credentials.path", "../secrets")

	require.False(t, v.IsValid())
	err := v.Err()
	require.Error(t, err)

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors(), 8)
	assert.Contains(t, err.Error(), "validation failed for backend.baseURL")
	assert.Contains(t, err.Error(), "; ")
}

func TestValidator_Valid(t *testing.T) {
	v := New()
	v.URL("backend.baseURL", "http://localhost:8000/api/", "http", "https")
	v.Range("dispatch.window", 15, 1, 300)
	v.OneOf("credentials.backend", "file", "file", "memory")
	v.Path("credentials.path", "/var/lib/goldenclean/credentials.json")

	assert.True(t, v.IsValid())
	assert.NoError(t, v.Err())
}

func TestValidator_ErrIsSnapshot(t *testing.T) {
	v := New()
	v.NotEmpty("a", "")
	err := v.Err()
	v.NotEmpty("b", "")

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors(), 1)
}
