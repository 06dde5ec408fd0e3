// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// breakerStates maps breaker state names to gauge values.
var breakerStates = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "goldenclean_breaker_state",
		Help: "Backend circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"breaker"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldenclean_breaker_trips_total",
		Help: "Transitions of a circuit breaker into the open state",
	}, []string{"breaker", "reason"}) // reason=threshold_exceeded|half_open_failure
)

// SetCircuitBreakerState records the state of breaker. Unknown states are ignored.
func SetCircuitBreakerState(breaker, state string) {
	if v, ok := breakerStates[state]; ok {
		breakerState.WithLabelValues(breaker).Set(v)
	}
}

// RecordCircuitBreakerTrip counts a breaker opening.
func RecordCircuitBreakerTrip(breaker, reason string) {
	breakerTrips.WithLabelValues(breaker, reason).Inc()
}
