// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	offersReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goldenclean_offers_received_total",
		Help: "Job offers classified from inbound frames",
	})

	offersDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldenclean_offers_dropped_total",
		Help: "Job offers discarded before activation",
	}, []string{"reason"}) // reason=duplicate|queue_full|closed

	offersResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldenclean_offers_resolved_total",
		Help: "Active offers leaving the slot by outcome",
	}, []string{"outcome"}) // outcome=accepted|timeout|accept_send_failed

	offerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "goldenclean_offer_queue_depth",
		Help: "Offers waiting behind the active slot",
	})

	offerActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "goldenclean_offer_active",
		Help: "Whether an offer currently occupies the active slot (1) or not (0)",
	})

	cueErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldenclean_cue_errors_total",
		Help: "Alert cue failures by operation",
	}, []string{"op"}) // op=play|stop

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldenclean_channel_frames_dropped_total",
		Help: "Inbound frames dropped by the connection channel",
	}, []string{"reason"}) // reason=binary|malformed

	framesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldenclean_channel_frames_sent_total",
		Help: "Outbound frames by type and outcome",
	}, []string{"type", "outcome"}) // outcome=sent|not_connected|error

	locationTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldenclean_location_ticks_total",
		Help: "Location reporter ticks by outcome",
	}, []string{"outcome"}) // outcome=sent|denied|unavailable|not_open
)

// IncOfferReceived counts a classified job offer.
func IncOfferReceived() { offersReceived.Inc() }

// IncOfferDropped counts a job offer discarded before activation.
func IncOfferDropped(reason string) { offersDropped.WithLabelValues(reason).Inc() }

// IncOfferResolved counts an active offer leaving the slot.
func IncOfferResolved(outcome string) { offersResolved.WithLabelValues(outcome).Inc() }

// SetOfferQueueDepth records the current pending queue length.
func SetOfferQueueDepth(n int) { offerQueueDepth.Set(float64(n)) }

// SetOfferActive records slot occupancy.
func SetOfferActive(active bool) {
	if active {
		offerActive.Set(1)
		return
	}
	offerActive.Set(0)
}

// IncCueError counts a contained cue failure.
func IncCueError(op string) { cueErrors.WithLabelValues(op).Inc() }

// IncFrameDropped counts an inbound frame the channel discarded.
func IncFrameDropped(reason string) { framesDropped.WithLabelValues(reason).Inc() }

// IncFrameSent counts an outbound frame attempt.
func IncFrameSent(frameType, outcome string) { framesSent.WithLabelValues(frameType, outcome).Inc() }

// IncLocationTick counts a location reporter tick.
func IncLocationTick(outcome string) { locationTicks.WithLabelValues(outcome).Inc() }
