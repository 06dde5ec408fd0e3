// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session runs a logged-in employee session: the dispatch channel,
// the location reporter, the offer coordinator and the local agent API, all
// joined on teardown.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/goldenclean/internal/agentapi"
	"github.com/ManuGH/goldenclean/internal/channel"
	"github.com/ManuGH/goldenclean/internal/credentials"
	"github.com/ManuGH/goldenclean/internal/cue"
	"github.com/ManuGH/goldenclean/internal/dispatch"
	"github.com/ManuGH/goldenclean/internal/location"
	xglog "github.com/ManuGH/goldenclean/internal/log"
	"github.com/ManuGH/goldenclean/internal/telemetry"
)

// ErrChannelLost ends a session whose dispatch connection dropped. There is
// no automatic reconnect; the caller decides whether to start a new session.
var ErrChannelLost = errors.New("session: dispatch connection lost")

// Handles exposes the running components once the session is wired.
type Handles struct {
	SessionID string
	Dispatch  *dispatch.Coordinator
	Location  *location.Reporter
}

// EmployeeOptions configures an employee session.
type EmployeeOptions struct {
	WSURL            string
	Store            credentials.Store
	Locator          location.Locator
	LocationInterval time.Duration
	Dispatch         dispatch.Config
	Cue              *cue.Handle
	Agent            agentapi.Config // empty Addr disables the agent API

	// Refresher, when set, renews a token the dispatch handshake refused.
	Refresher channel.Refresher

	// Ready, when set, is called once every component is running.
	Ready func(Handles)

	ChannelOptions  []channel.Option
	DispatchOptions []dispatch.Option
}

// RunEmployee blocks until ctx is done (nil) or a component fails.
func RunEmployee(ctx context.Context, opts EmployeeOptions) error {
	sessionID := uuid.NewString()
	ctx = xglog.ContextWithSessionID(ctx, sessionID)
	logger := xglog.WithComponentFromContext(ctx, "session")

	ctx, span := telemetry.Tracer("session").Start(ctx, "employee.session",
		trace.WithAttributes(telemetry.SessionAttributes(sessionID, "EMPLOYEE")...))
	defer span.End()

	locator := opts.Locator
	if locator == nil {
		locator = location.Denied{}
	}

	sender := &lazySender{}
	coord := dispatch.New(opts.Dispatch, sender, opts.Cue, opts.DispatchOptions...)
	defer func() { _ = coord.Close() }()

	chOpts := append([]channel.Option{}, opts.ChannelOptions...)
	if opts.Refresher != nil {
		chOpts = append(chOpts, channel.WithRefresher(opts.Refresher))
	}
	chOpts = append(chOpts,
		channel.WithMessageHandler(coord.HandleFrame),
		channel.WithErrorHandler(func(err error) {
			logger.Warn().Err(err).Msg("dispatch channel error")
		}),
	)
	ch, err := channel.Dial(ctx, opts.WSURL, opts.Store, chOpts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return err
	}
	sender.set(ch)
	defer func() {
		_ = ch.Close()
		<-ch.Done()
	}()

	reporter := location.NewReporter(ch, locator, opts.LocationInterval)
	logger.Info().Str(xglog.FieldEvent, "session.start").Msg("employee session started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return reporter.Run(gctx) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-ch.Done():
			return ErrChannelLost
		}
	})
	if opts.Agent.Addr != "" {
		agentCfg := opts.Agent
		agentCfg.SessionID = sessionID
		srv := agentapi.New(agentCfg, coord, reporter)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if opts.Ready != nil {
		opts.Ready(Handles{SessionID: sessionID, Dispatch: coord, Location: reporter})
	}

	err = g.Wait()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Str(xglog.FieldEvent, "session.end").Msg("employee session ended")
		return err
	}
	logger.Info().Str(xglog.FieldEvent, "session.end").Msg("employee session ended")
	return nil
}

// lazySender lets the coordinator exist before the channel it answers on.
type lazySender struct {
	mu sync.RWMutex
	ch *channel.Channel
}

func (s *lazySender) set(ch *channel.Channel) {
	s.mu.Lock()
	s.ch = ch
	s.mu.Unlock()
}

func (s *lazySender) Send(f channel.Frame) error {
	s.mu.RLock()
	ch := s.ch
	s.mu.RUnlock()
	if ch == nil {
		return channel.ErrNotConnected
	}
	return ch.Send(f)
}
