// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/goldenclean/internal/channel"
)

type fakeSender struct {
	mu    sync.Mutex
	state channel.State
	sent  []channel.Frame
}

func (f *fakeSender) State() channel.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSender) Send(fr channel.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != channel.StateOpen {
		return channel.ErrNotConnected
	}
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeSender) frames() []channel.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channel.Frame(nil), f.sent...)
}

func TestReport_SendsPosition(t *testing.T) {
	s := &fakeSender{state: channel.StateOpen}
	r := NewReporter(s, Static{Lat: -33.45, Lng: -70.66}, time.Hour)

	_, ok := r.Last()
	assert.False(t, ok)

	r.Report(context.Background())

	assert.Equal(t, []channel.Frame{channel.UpdateLocation{Lat: -33.45, Lng: -70.66}}, s.frames())
	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, Position{Lat: -33.45, Lng: -70.66}, last)
}

func TestReport_SkipsSilently(t *testing.T) {
	tests := []struct {
		name    string
		state   channel.State
		locator Locator
	}{
		{name: "permission denied", state: channel.StateOpen, locator: Denied{}},
		{name: "locator failure", state: channel.StateOpen, locator: LocatorFunc(func(context.Context) (Position, error) {
			return Position{}, errors.New("gps timeout")
		})},
		{name: "invalid fix", state: channel.StateOpen, locator: Static{Lat: 200}},
		{name: "channel not open", state: channel.StateClosed, locator: Static{Lat: 1, Lng: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSender{state: tt.state}
			r := NewReporter(s, tt.locator, time.Hour)
			r.Report(context.Background())
			assert.Empty(t, s.frames())
			_, ok := r.Last()
			assert.False(t, ok)
		})
	}
}

func TestReport_PermissionCheckedEveryTick(t *testing.T) {
	granted := false
	loc := LocatorFunc(func(context.Context) (Position, error) {
		if !granted {
			return Position{}, ErrPermissionDenied
		}
		return Position{Lat: 1, Lng: 2}, nil
	})
	s := &fakeSender{state: channel.StateOpen}
	r := NewReporter(s, loc, time.Hour)

	r.Report(context.Background())
	assert.Empty(t, s.frames())

	granted = true
	r.Report(context.Background())
	assert.Len(t, s.frames(), 1)
}

func TestRun_ReportsOnStartAndEveryInterval(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := &fakeSender{state: channel.StateOpen}
	r := NewReporter(s, Static{Lat: 1, Lng: 2}, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return len(s.frames()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestNewReporter_DefaultInterval(t *testing.T) {
	r := NewReporter(&fakeSender{}, Denied{}, 0)
	assert.Equal(t, DefaultInterval, r.interval)
}
