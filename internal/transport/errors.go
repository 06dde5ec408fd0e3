// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package transport

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnauthorized = errors.New("transport: unauthorized")
	ErrRejected     = errors.New("transport: request rejected")
	ErrServer       = errors.New("transport: server error (5xx)")
	ErrUnavailable  = errors.New("transport: backend unreachable or transport failure")
	ErrBadResponse  = errors.New("transport: invalid response format")
	ErrAuthExpired  = errors.New("transport: session expired, log in again")
)

// TransportError is returned for every failed call: non-2xx responses and
// failures to reach the backend at all (Status 0).
type TransportError struct {
	Sentinel error
	Method   string
	Path     string
	Status   int
	Detail   string // server-provided detail, or the caller's fallback message
	Err      error  // lower-level cause (net.Error, context error, ...)
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

// AuthExpiredError means the session cannot be recovered without a new login:
// the refresh token is missing, or the refresh itself failed.
type AuthExpiredError struct {
	Cause error
}

func (e *AuthExpiredError) Error() string {
	if e.Cause == nil {
		return ErrAuthExpired.Error()
	}
	return fmt.Sprintf("%v: %v", ErrAuthExpired, e.Cause)
}

func (e *AuthExpiredError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrAuthExpired}
	}
	return []error{ErrAuthExpired, e.Cause}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Status
	}
	return 0
}

// DetailOf returns the user-facing detail carried by err, falling back to err.Error().
func DetailOf(err error) string {
	var te *TransportError
	if errors.As(err, &te) && te.Detail != "" {
		return te.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func sentinelForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status >= 500:
		return ErrServer
	default:
		return ErrRejected
	}
}

// countsAgainstBackend reports whether err indicates the backend itself is unhealthy.
func countsAgainstBackend(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrServer)
}
