// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package location

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermissionDenied is returned when position access is not granted.
var ErrPermissionDenied = errors.New("location permission denied")

// Position is a WGS84 coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Position) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %v out of range", p.Lng)
	}
	return nil
}

// Locator asks for permission and reads the current position. It is consulted
// on every report, so a grant or revocation takes effect on the next tick.
type Locator interface {
	Locate(ctx context.Context) (Position, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (Position, error)

func (f LocatorFunc) Locate(ctx context.Context) (Position, error) { return f(ctx) }

// Static always reports the same position.
type Static Position

func (s Static) Locate(context.Context) (Position, error) { return Position(s), nil }

// Denied never grants permission.
type Denied struct{}

func (Denied) Locate(context.Context) (Position, error) { return Position{}, ErrPermissionDenied }
