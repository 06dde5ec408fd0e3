// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package cue plays the looping alert while a job offer is awaiting an answer.
package cue

import (
	"errors"
	"io"
	"sync"
	"time"
)

// Loop is one playing instance of the alert.
type Loop interface {
	// Stop halts playback and releases the instance. Calling it twice is safe.
	Stop() error
}

// Source loads and starts looping instances.
type Source interface {
	Start() (Loop, error)
}

// Handle owns at most one live Loop. Starting a new one always releases the
// previous instance first so loops never overlap.
type Handle struct {
	mu  sync.Mutex
	src Source
	cur Loop
}

func NewHandle(src Source) *Handle {
	if src == nil {
		src = Nop{}
	}
	return &Handle{src: src}
}

// Play releases any live instance and starts a fresh one.
func (h *Handle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stopErr error
	if h.cur != nil {
		stopErr = h.cur.Stop()
		h.cur = nil
	}
	loop, err := h.src.Start()
	if err != nil {
		return errors.Join(stopErr, err)
	}
	h.cur = loop
	return stopErr
}

// Stop releases the live instance, if any.
func (h *Handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur == nil {
		return nil
	}
	err := h.cur.Stop()
	h.cur = nil
	return err
}

// Active reports whether an instance is live.
func (h *Handle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur != nil
}

// Nop is a silent source.
type Nop struct{}

func (Nop) Start() (Loop, error) { return nopLoop{}, nil }

type nopLoop struct{}

func (nopLoop) Stop() error { return nil }

// Bell rings the terminal bell on Out every Period until stopped. Writes
// happen on the loop's own goroutine, so a stalled terminal never blocks
// Start or Stop.
type Bell struct {
	Out    io.Writer
	Period time.Duration
}

const defaultBellPeriod = 2 * time.Second

func (b Bell) Start() (Loop, error) {
	if b.Out == nil {
		return nil, errors.New("cue: bell has no output")
	}
	period := b.Period
	if period <= 0 {
		period = defaultBellPeriod
	}

	l := &bellLoop{stop: make(chan struct{}), done: make(chan struct{})}
	go l.run(b.Out, period)
	return l, nil
}

type bellLoop struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (l *bellLoop) run(out io.Writer, period time.Duration) {
	defer close(l.done)
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		if l.stopped() {
			return
		}
		if _, err := io.WriteString(out, "\a"); err != nil {
			return
		}
		select {
		case <-l.stop:
			return
		case <-t.C:
		}
	}
}

func (l *bellLoop) stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// Stop signals the loop and returns without waiting for it. A write already in
// progress finishes on its own; no further rings start.
func (l *bellLoop) Stop() error {
	l.once.Do(func() { close(l.stop) })
	return nil
}
