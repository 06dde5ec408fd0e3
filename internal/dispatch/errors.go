// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package dispatch

import "errors"

var (
	ErrNoActiveOffer = errors.New("dispatch: no active offer")
	ErrOfferMismatch = errors.New("dispatch: offer is not the active one")
	ErrClosed        = errors.New("dispatch: coordinator closed")
)
