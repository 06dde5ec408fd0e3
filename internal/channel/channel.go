// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package channel is the persistent, token-authenticated WebSocket connection
// to the employee dispatch endpoint.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ManuGH/goldenclean/internal/credentials"
	xglog "github.com/ManuGH/goldenclean/internal/log"
	"github.com/ManuGH/goldenclean/internal/metrics"
)

// State of the connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	maxMessageSize   = 64 << 10
)

type (
	MessageHandler func(Frame)
	ErrorHandler   func(error)
	OpenHandler    func()
)

// Option configures a Channel before it starts reading.
type Option func(*Channel)

func WithMessageHandler(fn MessageHandler) Option { return func(c *Channel) { c.onMessage = fn } }
func WithErrorHandler(fn ErrorHandler) Option     { return func(c *Channel) { c.onError = fn } }
func WithOpenHandler(fn OpenHandler) Option       { return func(c *Channel) { c.onOpen = fn } }

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option { return func(c *Channel) { c.dialer = d } }

func WithLogger(l zerolog.Logger) Option { return func(c *Channel) { c.logger = l } }

// Channel is an open socket. Handlers run on the read goroutine and must not block.
type Channel struct {
	state     atomic.Int32
	conn      *websocket.Conn
	dialer    *websocket.Dialer
	logger    zerolog.Logger
	refresher Refresher

	hmu       sync.RWMutex
	onMessage MessageHandler
	onError   ErrorHandler
	onOpen    OpenHandler

	writeMu   sync.Mutex
	closeOnce sync.Once
	closing   atomic.Bool
	done      chan struct{}
}

// Refresher replaces an access token the dispatch endpoint refused.
type Refresher interface {
	RefreshAccess(ctx context.Context, rejected string) (string, error)
}

// WithRefresher lets Dial recover from a handshake refused for an expired
// token: the token is refreshed once and the dial repeated.
func WithRefresher(r Refresher) Option { return func(c *Channel) { c.refresher = r } }

// Dial opens rawURL authenticated with the access token from store.
func Dial(ctx context.Context, rawURL string, store credentials.Store, opts ...Option) (*Channel, error) {
	token, err := credentials.Access(ctx, store)
	if err != nil {
		return nil, &ChannelError{Op: "dial", Err: err}
	}
	if token == "" {
		return nil, &ChannelError{Op: "dial", Err: ErrNoToken}
	}

	c := newChannel(opts)
	err = c.connect(ctx, rawURL, token)
	if err == nil {
		return c, nil
	}
	var ce *ChannelError
	if c.refresher == nil || !errors.As(err, &ce) || !ce.Unauthorized() {
		return nil, err
	}

	c.logger.Info().Int(xglog.FieldStatus, ce.Status).Msg("handshake refused, refreshing access token")
	fresh, rerr := c.refresher.RefreshAccess(ctx, token)
	if rerr != nil {
		return nil, rerr
	}
	c.state.Store(int32(StateConnecting))
	if err := c.connect(ctx, rawURL, fresh); err != nil {
		return nil, err
	}
	return c, nil
}

// Open connects to rawURL with token appended as the "token" query parameter
// and starts the read loop. The open handler runs before the first frame is
// delivered.
func Open(ctx context.Context, rawURL, token string, opts ...Option) (*Channel, error) {
	c := newChannel(opts)
	if err := c.connect(ctx, rawURL, token); err != nil {
		return nil, err
	}
	return c, nil
}

func newChannel(opts []Option) *Channel {
	c := &Channel{
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger: xglog.WithComponent("channel"),
		done:   make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) connect(ctx context.Context, rawURL, token string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		c.state.Store(int32(StateClosed))
		return &ChannelError{Op: "dial", Err: err}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		c.state.Store(int32(StateClosed))
		return &ChannelError{Op: "dial", Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		ce := &ChannelError{Op: "dial", Err: err}
		if resp != nil {
			ce.Status = resp.StatusCode
			_ = resp.Body.Close()
		}
		c.state.Store(int32(StateClosed))
		return ce
	}
	conn.SetReadLimit(maxMessageSize)
	c.conn = conn
	c.state.Store(int32(StateOpen))

	// Host only; the query carries the token.
	c.logger.Info().Str("host", u.Host).Str("path", u.Path).Msg("channel opened")

	if fn := c.openHandler(); fn != nil {
		fn()
	}
	go c.readLoop()
	return nil
}

// State returns the current connection state.
func (c *Channel) State() State { return State(c.state.Load()) }

// Done is closed once the read loop has exited.
func (c *Channel) Done() <-chan struct{} { return c.done }

// OnMessage replaces the inbound frame handler.
func (c *Channel) OnMessage(fn MessageHandler) {
	c.hmu.Lock()
	c.onMessage = fn
	c.hmu.Unlock()
}

// OnError replaces the error handler.
func (c *Channel) OnError(fn ErrorHandler) {
	c.hmu.Lock()
	c.onError = fn
	c.hmu.Unlock()
}

// OnOpen replaces the open handler. When the channel is already open fn runs
// immediately on the calling goroutine.
func (c *Channel) OnOpen(fn OpenHandler) {
	c.hmu.Lock()
	c.onOpen = fn
	c.hmu.Unlock()
	if fn != nil && c.State() == StateOpen {
		fn()
	}
}

// Send writes one frame. It returns ErrNotConnected unless the channel is open.
func (c *Channel) Send(f Frame) error {
	if c.State() != StateOpen {
		metrics.IncFrameSent(f.Type(), "not_connected")
		c.logger.Warn().Str(xglog.FieldFrameType, f.Type()).Msg("send while not connected")
		return ErrNotConnected
	}
	payload, err := Encode(f)
	if err != nil {
		metrics.IncFrameSent(f.Type(), "error")
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		metrics.IncFrameSent(f.Type(), "error")
		return &ChannelError{Op: "write", Err: err}
	}
	metrics.IncFrameSent(f.Type(), "sent")
	return nil
}

// Close tears the connection down. It is idempotent; wait on Done to join
// the read loop.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.state.Store(int32(StateClosed))

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
		c.logger.Info().Msg("channel closed")
	})
	return err
}

func (c *Channel) readLoop() {
	defer close(c.done)
	defer func() { _ = c.Close() }()

	for {
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if c.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("read loop finished")
				return
			}
			c.emitError(&ChannelError{Op: "read", Err: err})
			return
		}
		if msgType != websocket.TextMessage {
			metrics.IncFrameDropped("binary")
			continue
		}

		frame, err := Parse(payload)
		if err != nil {
			var mf *MalformedFrameError
			if errors.As(err, &mf) {
				metrics.IncFrameDropped("malformed")
				c.logger.Warn().Str("reason", mf.Reason).Str("payload", mf.Payload).Msg("dropping malformed frame")
			}
			continue
		}

		c.logger.Debug().Str(xglog.FieldFrameType, frame.Type()).Msg("frame received")
		if fn := c.messageHandler(); fn != nil {
			fn(frame)
		}
	}
}

func (c *Channel) emitError(err error) {
	c.logger.Error().Err(err).Msg("channel error")
	c.hmu.RLock()
	fn := c.onError
	c.hmu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Channel) messageHandler() MessageHandler {
	c.hmu.RLock()
	defer c.hmu.RUnlock()
	return c.onMessage
}

func (c *Channel) openHandler() OpenHandler {
	c.hmu.RLock()
	defer c.hmu.RUnlock()
	return c.onOpen
}
