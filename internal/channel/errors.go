// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package channel

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotConnected is returned by Send while the channel is not open.
	ErrNotConnected = errors.New("channel: not connected")
	// ErrNoToken means no access token is stored, so the socket cannot authenticate.
	ErrNoToken = errors.New("no token found")
)

// ChannelError reports a socket failure during dial, read or write.
type ChannelError struct {
	Op     string // dial, read, write
	Status int    // handshake HTTP status, when the dial was rejected
	Err    error
}

func (e *ChannelError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("channel %s (HTTP %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Unauthorized reports whether the handshake was refused for its token.
// Some servers answer 403 rather than 401 for a stale token.
func (e *ChannelError) Unauthorized() bool {
	return e.Op == "dial" && (e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

const maxLoggedPayload = 256

// MalformedFrameError describes an inbound payload that could not be parsed.
// Such frames are dropped.
type MalformedFrameError struct {
	Payload string // truncated
	Reason  string
	Err     error
}

func (e *MalformedFrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed frame: %s: %v", e.Reason, e.Err)
	}
	return "malformed frame: " + e.Reason
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

func malformed(payload []byte, reason string, err error) *MalformedFrameError {
	p := string(payload)
	if len(p) > maxLoggedPayload {
		p = p[:maxLoggedPayload] + "..."
	}
	return &MalformedFrameError{Payload: p, Reason: reason, Err: err}
}
