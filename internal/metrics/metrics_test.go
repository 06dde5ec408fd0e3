// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferCounters(t *testing.T) {
	before := testutil.ToFloat64(offersReceived)
	IncOfferReceived()
	assert.Equal(t, before+1, testutil.ToFloat64(offersReceived))

	dup := testutil.ToFloat64(offersDropped.WithLabelValues("duplicate"))
	IncOfferDropped("duplicate")
	assert.Equal(t, dup+1, testutil.ToFloat64(offersDropped.WithLabelValues("duplicate")))

	SetOfferActive(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(offerActive))
	SetOfferActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(offerActive))

	SetOfferQueueDepth(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(offerQueueDepth))
}

func TestCircuitBreakerState(t *testing.T) {
	SetCircuitBreakerState("test", "open")
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("test")))

	SetCircuitBreakerState("test", "bogus")
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("test")))

	SetCircuitBreakerState("test", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(breakerState.WithLabelValues("test")))

	before := testutil.ToFloat64(breakerTrips.WithLabelValues("test", "threshold_exceeded"))
	RecordCircuitBreakerTrip("test", "threshold_exceeded")
	assert.Equal(t, before+1, testutil.ToFloat64(breakerTrips.WithLabelValues("test", "threshold_exceeded")))
}

func TestObserveTransportRequest_LabelsAttempt(t *testing.T) {
	first := testutil.ToFloat64(transportRequests.WithLabelValues("GET", "401", "first"))
	replay := testutil.ToFloat64(transportRequests.WithLabelValues("GET", "200", "replay"))

	ObserveTransportRequest("GET", 401, false, 20*time.Millisecond)
	ObserveTransportRequest("GET", 200, true, 30*time.Millisecond)

	assert.Equal(t, first+1, testutil.ToFloat64(transportRequests.WithLabelValues("GET", "401", "first")))
	assert.Equal(t, replay+1, testutil.ToFloat64(transportRequests.WithLabelValues("GET", "200", "replay")))

	h, ok := transportDuration.WithLabelValues("GET").(prometheus.Metric)
	require.True(t, ok)
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	require.NotNil(t, m.GetHistogram())
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(2))
	assert.Greater(t, m.GetHistogram().GetSampleSum(), 0.0)
}

func TestCredentialRefreshOutcomes(t *testing.T) {
	for _, outcome := range []string{"success", "rejected", "error", "no_refresh_token"} {
		before := testutil.ToFloat64(credentialRefreshes.WithLabelValues(outcome))
		IncCredentialRefresh(outcome)
		assert.Equal(t, before+1, testutil.ToFloat64(credentialRefreshes.WithLabelValues(outcome)), outcome)
	}

	shared := testutil.ToFloat64(credentialRefreshShared)
	IncCredentialRefreshShared()
	assert.Equal(t, shared+1, testutil.ToFloat64(credentialRefreshShared))
}
