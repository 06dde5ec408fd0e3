// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package dispatch presents incoming job offers one at a time with a
// countdown, queues the rest, and resolves each offer by accept or timeout.
//
// All slot state is owned by a single event-loop goroutine; frames, ticks and
// accepts are delivered to it as events and handled to completion in order.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/goldenclean/internal/channel"
	"github.com/ManuGH/goldenclean/internal/cue"
	xglog "github.com/ManuGH/goldenclean/internal/log"
	"github.com/ManuGH/goldenclean/internal/metrics"
	"github.com/ManuGH/goldenclean/internal/telemetry"
)

const (
	DefaultWindow       = 15
	DefaultTickInterval = time.Second
	DefaultMaxQueue     = 64

	eventBuffer      = 64
	subscriberBuffer = 16
)

// Offer is an immutable job offer. ServiceID is its identity.
type Offer struct {
	ServiceID   int64  `json:"service_id"`
	Description string `json:"description"`
}

// Snapshot is an immutable view of the coordinator.
type Snapshot struct {
	State     State  `json:"state"`
	Offer     *Offer `json:"offer,omitempty"`
	Countdown int    `json:"countdown"`
	Queued    int    `json:"queued"`
}

// Sender delivers the accept_service frame.
type Sender interface {
	Send(channel.Frame) error
}

// Config tunes the coordinator. Zero values take the defaults.
type Config struct {
	Window       int
	TickInterval time.Duration
	MaxQueue     int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTickerFactory replaces the countdown clock.
func WithTickerFactory(f TickerFactory) Option { return func(c *Coordinator) { c.newTicker = f } }

func WithLogger(l zerolog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

type eventType int

const (
	evOffer eventType = iota
	evTick
	evAccept
)

type event struct {
	typ   eventType
	offer Offer
	gen   uint64
	id    int64
	reply chan error
}

// Coordinator is the offer dispatch state machine.
type Coordinator struct {
	cfg       Config
	sender    Sender
	cue       *cue.Handle
	newTicker TickerFactory
	logger    zerolog.Logger

	events    chan event
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	snap atomic.Pointer[Snapshot]

	subMu  sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
	closed bool

	// Loop-owned.
	state     State
	active    *Offer
	countdown int
	queue     []Offer
	gen       uint64
	timer     *countdownTimer
	span      trace.Span
}

// New starts a coordinator. Close must be called to release it.
func New(cfg Config, sender Sender, handle *cue.Handle, opts ...Option) *Coordinator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = DefaultMaxQueue
	}
	if handle == nil {
		handle = cue.NewHandle(nil)
	}

	c := &Coordinator{
		cfg:       cfg,
		sender:    sender,
		cue:       handle,
		newTicker: newStdTicker,
		logger:    xglog.WithComponent("dispatch"),
		events:    make(chan event, eventBuffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		subs:      make(map[int]chan Snapshot),
		state:     StateIdle,
		countdown: cfg.Window,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.publish()
	go c.loop()
	return c
}

// Run blocks until ctx is done or the coordinator is closed.
func (c *Coordinator) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return c.Close()
	case <-c.done:
		return nil
	}
}

// Close stops the countdown, releases the cue and ends the event loop.
// It is idempotent.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.done
	return nil
}

// HandleFrame feeds an inbound channel frame. Only service notifications matter.
func (c *Coordinator) HandleFrame(f channel.Frame) {
	if n, ok := f.(channel.ServiceNotification); ok {
		c.Offer(Offer{ServiceID: n.ServiceID, Description: n.Description})
	}
}

// Offer submits a job offer.
func (c *Coordinator) Offer(o Offer) {
	metrics.IncOfferReceived()
	if !c.post(event{typ: evOffer, offer: o}) {
		metrics.IncOfferDropped("closed")
	}
}

// Accept answers the active offer. It fails with ErrNoActiveOffer while idle
// and ErrOfferMismatch when id is not the active offer. A send failure is
// returned after the slot has been cleared. ctx only guards submission: once
// the accept is queued its outcome is always reported.
func (c *Coordinator) Accept(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	reply := make(chan error, 1)
	if !c.postCtx(ctx, event{typ: evAccept, id: id, reply: reply}) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		// The loop may have answered just before exiting.
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// Snapshot returns the current view.
func (c *Coordinator) Snapshot() Snapshot { return *c.snap.Load() }

// Subscribe streams snapshots after every change. Slow subscribers miss
// intermediate snapshots. The channel is closed by cancel or Close.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	ch <- *c.snap.Load()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Coordinator) post(ev event) bool {
	return c.postCtx(context.Background(), ev)
}

func (c *Coordinator) postCtx(ctx context.Context, ev event) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.quit:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Coordinator) loop() {
	defer close(c.done)
	defer c.shutdown()

	for {
		select {
		case <-c.quit:
			return
		case ev := <-c.events:
			c.handle(ev)
			if c.state == StateIdle && len(c.queue) > 0 {
				c.apply(EvPromote, nil)
			}
			c.publish()
		}
	}
}

func (c *Coordinator) handle(ev event) {
	switch ev.typ {
	case evOffer:
		c.onOffer(ev.offer)
	case evTick:
		c.onTick(ev.gen)
	case evAccept:
		ev.reply <- c.onAccept(ev.id)
	}
}

func (c *Coordinator) onOffer(o Offer) {
	if c.active != nil && c.active.ServiceID == o.ServiceID {
		metrics.IncOfferDropped("duplicate")
		return
	}
	for _, q := range c.queue {
		if q.ServiceID == o.ServiceID {
			metrics.IncOfferDropped("duplicate")
			return
		}
	}
	if len(c.queue) >= c.cfg.MaxQueue {
		metrics.IncOfferDropped("queue_full")
		c.logger.Warn().Int64(xglog.FieldServiceID, o.ServiceID).Msg("offer queue full, dropping offer")
		return
	}

	c.queue = append(c.queue, o)
	c.logger.Info().Int64(xglog.FieldServiceID, o.ServiceID).Int(xglog.FieldQueued, len(c.queue)).Msg("offer received")
	c.apply(EvOfferArrived, nil)
}

func (c *Coordinator) onTick(gen uint64) {
	// Ticks from a previous activation lose any race with accept or timeout.
	if gen != c.gen || c.state != StateActive {
		return
	}
	if c.countdown > 1 {
		c.apply(EvTick, nil)
		return
	}
	c.apply(EvExpire, nil)
}

func (c *Coordinator) onAccept(id int64) error {
	if c.state != StateActive || c.active == nil {
		return ErrNoActiveOffer
	}
	if c.active.ServiceID != id {
		return fmt.Errorf("%w: active is %d, got %d", ErrOfferMismatch, c.active.ServiceID, id)
	}
	var sendErr error
	c.apply(EvAccept, &sendErr)
	return sendErr
}

// apply executes a table transition and its effects. out receives the send
// error for EvAccept.
func (c *Coordinator) apply(ev EventKind, out *error) {
	tr, ok := TransitionFor(c.state, ev)
	if !ok {
		c.logger.Debug().Str(xglog.FieldEvent, string(ev)).Str(xglog.FieldOldState, string(c.state)).Msg("ignored event")
		return
	}

	switch ev {
	case EvOfferArrived:
		if c.state == StateIdle {
			c.activateHead()
		}
	case EvPromote:
		c.activateHead()
	case EvTick:
		c.countdown--
	case EvExpire:
		id := c.active.ServiceID
		c.clearSlot("timeout")
		metrics.IncOfferResolved("timeout")
		c.logger.Info().Int64(xglog.FieldServiceID, id).Msg("offer timed out")
	case EvAccept:
		id := c.active.ServiceID
		if err := c.sender.Send(channel.AcceptService{ServiceID: id}); err != nil {
			c.span.RecordError(err)
			c.span.SetStatus(codes.Error, "accept send failed")
			c.clearSlot("accept_send_failed")
			metrics.IncOfferResolved("accept_send_failed")
			c.logger.Error().Err(err).Int64(xglog.FieldServiceID, id).Msg("accept could not be sent")
			*out = fmt.Errorf("send accept_service for %d: %w", id, err)
			break
		}
		c.clearSlot("accepted")
		metrics.IncOfferResolved("accepted")
		c.logger.Info().Int64(xglog.FieldServiceID, id).Msg("offer accepted")
	}

	if tr.From != tr.To {
		c.logger.Debug().
			Str(xglog.FieldEvent, string(ev)).
			Str(xglog.FieldOldState, string(tr.From)).
			Str(xglog.FieldNewState, string(tr.To)).
			Msg("slot transition")
	}
	c.state = tr.To
}

func (c *Coordinator) activateHead() {
	head := c.queue[0]
	c.queue = c.queue[1:]
	c.active = &head
	c.countdown = c.cfg.Window
	c.gen++
	c.startTimer()
	_, c.span = telemetry.Tracer("dispatch").Start(context.Background(), "offer.active")

	if err := c.cue.Play(); err != nil {
		metrics.IncCueError("play")
		c.logger.Warn().Err(err).Msg("alert cue failed to start")
	}
	metrics.SetOfferActive(true)
	c.logger.Info().
		Int64(xglog.FieldServiceID, head.ServiceID).
		Int(xglog.FieldCountdown, c.countdown).
		Int(xglog.FieldQueued, len(c.queue)).
		Msg("offer active")
}

func (c *Coordinator) clearSlot(outcome string) {
	c.stopTimer()
	c.endSpan(outcome)
	c.active = nil
	c.countdown = c.cfg.Window
	if err := c.cue.Stop(); err != nil {
		metrics.IncCueError("stop")
		c.logger.Warn().Err(err).Msg("alert cue failed to stop")
	}
	metrics.SetOfferActive(false)
}

func (c *Coordinator) shutdown() {
	c.stopTimer()
	c.endSpan("closed")
	if err := c.cue.Stop(); err != nil {
		metrics.IncCueError("stop")
		c.logger.Warn().Err(err).Msg("alert cue failed to stop")
	}
	metrics.SetOfferActive(false)

	c.subMu.Lock()
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.subMu.Unlock()
}

// endSpan closes the span of the active offer, recording how it ended.
func (c *Coordinator) endSpan(outcome string) {
	if c.span == nil {
		return
	}
	var id int64
	if c.active != nil {
		id = c.active.ServiceID
	}
	c.span.SetAttributes(telemetry.OfferAttributes(id, outcome)...)
	c.span.End()
	c.span = nil
}

func (c *Coordinator) publish() {
	s := &Snapshot{
		State:     c.state,
		Countdown: c.countdown,
		Queued:    len(c.queue),
	}
	if c.active != nil {
		o := *c.active
		s.Offer = &o
	}
	c.snap.Store(s)
	metrics.SetOfferQueueDepth(len(c.queue))

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- *s:
		default:
		}
	}
}

// countdownTimer forwards ticks tagged with the activation generation.
type countdownTimer struct {
	ticker Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

func (c *Coordinator) startTimer() {
	c.stopTimer()

	t := &countdownTimer{ticker: c.newTicker(c.cfg.TickInterval), stop: make(chan struct{})}
	gen := c.gen
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-t.stop:
				return
			case <-t.ticker.C():
				select {
				case c.events <- event{typ: evTick, gen: gen}:
				case <-t.stop:
					return
				}
			}
		}
	}()
	c.timer = t
}

func (c *Coordinator) stopTimer() {
	if c.timer == nil {
		return
	}
	close(c.timer.stop)
	c.timer.ticker.Stop()
	c.timer.wg.Wait()
	c.timer = nil
}
