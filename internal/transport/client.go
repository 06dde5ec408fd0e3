// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package transport is the authenticated HTTP client for the backend API.
// It attaches the stored access token, and on a 401 refreshes the token once
// (shared across concurrent callers) and replays the request exactly once.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ManuGH/goldenclean/internal/credentials"
	xglog "github.com/ManuGH/goldenclean/internal/log"
	"github.com/ManuGH/goldenclean/internal/metrics"
	"github.com/ManuGH/goldenclean/internal/platform/httpx"
	"github.com/ManuGH/goldenclean/internal/resilience"
)

const (
	// DefaultTimeout matches the per-request timeout of the mobile client.
	DefaultTimeout = 10 * time.Second

	// RefreshPath is the token refresh endpoint, relative to the base URL.
	RefreshPath = "auth/refresh/"

	maxResponseBytes = 4 << 20
	headerRequestID  = "X-Request-ID"
)

// Request describes one backend call. Path is relative to the base URL.
type Request struct {
	Method       string
	Path         string
	Body         any // JSON-encoded when non-nil
	RequiresAuth bool

	// FailureMessage is used as the error detail when the server supplies none.
	FailureMessage string
}

// Response is a successful (2xx) backend response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

// Client performs backend calls. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	store   credentials.Store
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger

	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default otelhttp-instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit caps outbound calls. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewCircuitBreaker returns a breaker that trips only on transport failures
// and 5xx responses; 4xx answers mean the backend is healthy.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker("backend", threshold, resetTimeout,
		resilience.WithFailurePredicate(countsAgainstBackend))
}

// WithCircuitBreaker guards calls with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for baseURL (e.g. "http://host:8000/api/").
func New(baseURL string, store credentials.Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("transport: credential store is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("transport: base URL %q must be http or https", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := &Client{
		base:   u,
		http:   httpx.NewClient(DefaultTimeout),
		store:  store,
		logger: xglog.WithComponent("transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// Call performs req. A 401 on an authenticated call triggers one credential
// refresh and one replay; a 401 on the replay is returned as is.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	var token string
	if req.RequiresAuth {
		var err error
		if token, err = credentials.Access(ctx, c.store); err != nil {
			return nil, err
		}
	}

	resp, err := c.do(ctx, req, token, false)
	if err == nil || !req.RequiresAuth || StatusOf(err) != http.StatusUnauthorized {
		return resp, err
	}

	fresh, rerr := c.recoverAccess(ctx, token, err)
	if rerr != nil {
		return nil, rerr
	}
	return c.do(ctx, req, fresh, true)
}

// RefreshAccess returns a usable access token after rejected was refused by
// something other than a Call, such as the dispatch socket handshake. It shares
// the single-flight refresh with Call; failure is an *AuthExpiredError.
func (c *Client) RefreshAccess(ctx context.Context, rejected string) (string, error) {
	return c.recoverAccess(ctx, rejected, ErrUnauthorized)
}

// recoverAccess returns a usable access token after a 401 with used. If another
// caller already replaced the token, that one is reused without a new refresh.
func (c *Client) recoverAccess(ctx context.Context, used string, unauthorized error) (string, error) {
	current, err := credentials.Access(ctx, c.store)
	if err != nil {
		return "", &AuthExpiredError{Cause: err}
	}
	if current != "" && current != used {
		return current, nil
	}

	refresh, err := credentials.Refresh(ctx, c.store)
	if err != nil {
		return "", &AuthExpiredError{Cause: err}
	}
	if refresh == "" {
		metrics.IncCredentialRefresh("no_refresh_token")
		return "", &AuthExpiredError{Cause: unauthorized}
	}

	access, err := c.refresh(ctx, refresh)
	if err != nil {
		return "", &AuthExpiredError{Cause: err}
	}
	return access, nil
}

func (c *Client) do(ctx context.Context, req Request, token string, replay bool) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.failure(req, 0, "", err)
		}
	}

	var resp *Response
	call := func() error {
		var err error
		resp, err = c.roundTrip(ctx, req, token, replay)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, c.failure(req, 0, "", err)
		}
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, req Request, token string, replay bool) (*Response, error) {
	target := c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(req.Path, "/")})

	var body io.Reader
	if req.Body != nil {
		buf, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("transport: encode %s body: %w", req.Path, err)
		}
		body = bytes.NewReader(buf)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	reqID := xglog.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	httpReq.Header.Set(headerRequestID, reqID)

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveTransportRequest(method, 0, replay, time.Since(start))
		c.logger.Debug().Err(err).Str(xglog.FieldMethod, method).Str(xglog.FieldPath, req.Path).
			Str(xglog.FieldRequestID, reqID).Msg("backend unreachable")
		return nil, c.failure(req, 0, "", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	metrics.ObserveTransportRequest(method, httpResp.StatusCode, replay, time.Since(start))
	if err != nil {
		return nil, c.failure(req, httpResp.StatusCode, "", err)
	}

	c.logger.Debug().
		Str(xglog.FieldMethod, method).
		Str(xglog.FieldPath, req.Path).
		Int(xglog.FieldStatus, httpResp.StatusCode).
		Bool("replay", replay).
		Str(xglog.FieldRequestID, reqID).
		Msg("backend call")

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, c.failure(req, httpResp.StatusCode, detailFromBody(raw), nil)
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: raw}, nil
}

func (c *Client) failure(req Request, status int, detail string, cause error) *TransportError {
	sentinel := ErrUnavailable
	if status > 0 {
		sentinel = sentinelForStatus(status)
	}
	if detail == "" {
		detail = req.FailureMessage
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return &TransportError{
		Sentinel: sentinel,
		Method:   method,
		Path:     req.Path,
		Status:   status,
		Detail:   detail,
		Err:      cause,
	}
}

// detailFromBody extracts the backend's {"detail": "..."} message, if any.
func detailFromBody(raw []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &payload) != nil || len(payload.Detail) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(payload.Detail, &s) == nil {
		return s
	}
	return ""
}
