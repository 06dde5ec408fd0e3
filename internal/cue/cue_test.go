// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cue

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type countingSource struct {
	mu      sync.Mutex
	live    int
	maxLive int
	started int
	failAt  int
}

type countingLoop struct {
	src     *countingSource
	stopped bool
}

func (s *countingSource) Start() (Loop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	if s.failAt > 0 && s.started == s.failAt {
		return nil, errors.New("decoder unavailable")
	}
	s.live++
	if s.live > s.maxLive {
		s.maxLive = s.live
	}
	return &countingLoop{src: s}, nil
}

func (l *countingLoop) Stop() error {
	l.src.mu.Lock()
	defer l.src.mu.Unlock()
	if !l.stopped {
		l.stopped = true
		l.src.live--
	}
	return nil
}

func TestHandle_NeverOverlaps(t *testing.T) {
	src := &countingSource{}
	h := NewHandle(src)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Play())
	}
	assert.Equal(t, 1, src.live)
	assert.Equal(t, 1, src.maxLive)
	assert.True(t, h.Active())

	require.NoError(t, h.Stop())
	assert.Equal(t, 0, src.live)
	assert.False(t, h.Active())
	assert.NoError(t, h.Stop(), "stop without a live instance is a no-op")
}

func TestHandle_StartFailureLeavesNothingLive(t *testing.T) {
	src := &countingSource{failAt: 2}
	h := NewHandle(src)

	require.NoError(t, h.Play())
	assert.Error(t, h.Play())
	assert.Equal(t, 0, src.live)
	assert.False(t, h.Active())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestBell_LoopsUntilStopped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	out := &syncBuffer{}
	loop, err := Bell{Out: out, Period: 5 * time.Millisecond}.Start()
	require.NoError(t, err)

	require.Eventually(t, func() bool { return strings.Count(out.String(), "\a") >= 3 }, time.Second, time.Millisecond)
	require.NoError(t, loop.Stop())
	<-loop.(*bellLoop).done

	n := strings.Count(out.String(), "\a")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, strings.Count(out.String(), "\a"), "no rings after stop")
}

// blockingWriter stalls every write until release is closed.
type blockingWriter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.entered) })
	<-w.release
	return len(p), nil
}

func TestBell_StalledOutputDoesNotBlockHandle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w := &blockingWriter{entered: make(chan struct{}), release: make(chan struct{})}
	h := NewHandle(Bell{Out: w, Period: time.Millisecond})

	returned := make(chan error, 1)
	go func() { returned <- h.Play() }()
	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Play blocked on a stalled writer")
	}
	<-w.entered

	stopped := make(chan error, 1)
	go func() { stopped <- h.Stop() }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a stalled writer")
	}
	assert.False(t, h.Active())

	close(w.release)
}

func TestBell_RequiresOutput(t *testing.T) {
	_, err := Bell{}.Start()
	assert.Error(t, err)
}
