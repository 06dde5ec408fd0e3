// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package agentapi is the local HTTP surface of an employee session: it shows
// the current offer and lets the operator accept it.
package agentapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/goldenclean/internal/dispatch"
	"github.com/ManuGH/goldenclean/internal/location"
	xglog "github.com/ManuGH/goldenclean/internal/log"
)

const shutdownTimeout = 5 * time.Second

// Dispatcher is the coordinator surface the API drives.
type Dispatcher interface {
	Snapshot() dispatch.Snapshot
	Accept(ctx context.Context, id int64) error
}

// Locations exposes the last reported position.
type Locations interface {
	Last() (location.Position, bool)
}

// Config for the agent API.
type Config struct {
	Addr           string
	RateLimit      int // requests per minute per client; 0 disables
	TracingService string
	SessionID      string
}

// Server serves the agent API.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	locations  Locations
	router     chi.Router
	logger     zerolog.Logger
}

type statusResponse struct {
	SessionID string             `json:"session_id,omitempty"`
	State     dispatch.State     `json:"state"`
	Offer     *dispatch.Offer    `json:"offer,omitempty"`
	Countdown int                `json:"countdown"`
	Queued    int                `json:"queued"`
	Location  *location.Position `json:"location,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func New(cfg Config, d Dispatcher, loc Locations) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		locations:  loc,
		logger:     xglog.WithComponent("agentapi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	if cfg.TracingService != "" {
		r.Use(tracing(cfg.TracingService))
	}
	r.Use(accessLog)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(rateLimit(cfg.RateLimit, time.Minute))
		}
		r.Get("/status", s.handleStatus)
		r.Post("/offers/{serviceID}/accept", s.handleAccept)
	})

	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("agent API listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.dispatcher.Snapshot()
	resp := statusResponse{
		SessionID: s.cfg.SessionID,
		State:     snap.State,
		Offer:     snap.Offer,
		Countdown: snap.Countdown,
		Queued:    snap.Queued,
	}
	if s.locations != nil {
		if pos, ok := s.locations.Last(); ok {
			resp.Location = &pos
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "serviceID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_service_id", "service id must be a positive integer")
		return
	}

	err = s.dispatcher.Accept(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, dispatch.ErrNoActiveOffer):
		writeError(w, http.StatusNotFound, "no_active_offer", err.Error())
	case errors.Is(err, dispatch.ErrOfferMismatch):
		writeError(w, http.StatusConflict, "offer_mismatch", err.Error())
	case errors.Is(err, dispatch.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "session_closed", err.Error())
	default:
		logger := xglog.WithComponentFromContext(r.Context(), "agentapi")
		logger.Warn().Err(err).
			Int64(xglog.FieldServiceID, id).Msg("accept failed")
		writeError(w, http.StatusBadGateway, "accept_send_failed", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Error: code, Detail: detail})
}
