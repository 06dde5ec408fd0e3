// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package location periodically reports the employee position over the
// dispatch channel.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/goldenclean/internal/channel"
	xglog "github.com/ManuGH/goldenclean/internal/log"
	"github.com/ManuGH/goldenclean/internal/metrics"
)

// DefaultInterval between position reports.
const DefaultInterval = 30 * time.Second

// Sender is the part of the channel the reporter needs.
type Sender interface {
	State() channel.State
	Send(channel.Frame) error
}

// Reporter sends update_location frames on start and then every interval.
type Reporter struct {
	sender   Sender
	locator  Locator
	interval time.Duration
	logger   zerolog.Logger

	mu   sync.RWMutex
	last *Position
}

func NewReporter(sender Sender, locator Locator, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		sender:   sender,
		locator:  locator,
		interval: interval,
		logger:   xglog.WithComponent("location"),
	}
}

// Run reports once immediately and then on every tick until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Report(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Report(ctx)
		}
	}
}

// Report performs one tick. Permission denial, locator failure and a closed
// channel are skipped silently.
func (r *Reporter) Report(ctx context.Context) {
	if r.sender.State() != channel.StateOpen {
		metrics.IncLocationTick("not_open")
		return
	}

	pos, err := r.locator.Locate(ctx)
	if err != nil {
		outcome := "unavailable"
		if errors.Is(err, ErrPermissionDenied) {
			outcome = "denied"
		}
		metrics.IncLocationTick(outcome)
		r.logger.Debug().Err(err).Msg("position unavailable, skipping report")
		return
	}
	if err := pos.Validate(); err != nil {
		metrics.IncLocationTick("unavailable")
		r.logger.Debug().Err(err).Msg("invalid position, skipping report")
		return
	}

	if err := r.sender.Send(channel.UpdateLocation{Lat: pos.Lat, Lng: pos.Lng}); err != nil {
		metrics.IncLocationTick("not_open")
		r.logger.Debug().Err(err).Msg("location send failed")
		return
	}

	r.mu.Lock()
	r.last = &pos
	r.mu.Unlock()
	metrics.IncLocationTick("sent")
}

// Last returns the most recently sent position.
func (r *Reporter) Last() (Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Position{}, false
	}
	return *r.last, true
}
