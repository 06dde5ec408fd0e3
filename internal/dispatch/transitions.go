// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package dispatch

// State of the offer slot.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// EventKind is an input to the slot state machine.
type EventKind string

const (
	EvOfferArrived EventKind = "offer_arrived"
	EvPromote      EventKind = "promote"
	EvTick         EventKind = "tick"
	EvExpire       EventKind = "expire" // tick with one second left
	EvAccept       EventKind = "accept"
)

// Transition is a single allowed edge in the slot state machine.
type Transition struct {
	From  State
	To    State
	Event EventKind
}

var transitionsTable = []Transition{
	// Arrival
	{From: StateIdle, To: StateActive, Event: EvOfferArrived},
	{From: StateActive, To: StateActive, Event: EvOfferArrived},

	// Queue head moves into an empty slot
	{From: StateIdle, To: StateActive, Event: EvPromote},

	// Countdown
	{From: StateActive, To: StateActive, Event: EvTick},
	{From: StateActive, To: StateIdle, Event: EvExpire},

	// Answer
	{From: StateActive, To: StateIdle, Event: EvAccept},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from State, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}
