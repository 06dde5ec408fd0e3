// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transportRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldenclean_transport_requests_total",
		Help: "Backend HTTP calls by method, status code and attempt",
	}, []string{"method", "code", "attempt"}) // attempt=first|replay

	transportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "goldenclean_transport_request_duration_seconds",
		Help:    "Backend HTTP call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	credentialRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldenclean_credential_refresh_total",
		Help: "Access token refresh attempts by outcome",
	}, []string{"outcome"}) // outcome=success|rejected|error|no_refresh_token

	credentialRefreshShared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goldenclean_credential_refresh_shared_total",
		Help: "401 handlers that joined an in-flight refresh instead of issuing their own",
	})
)

// ObserveTransportRequest records one backend HTTP call. code 0 means no response.
func ObserveTransportRequest(method string, code int, replay bool, d time.Duration) {
	attempt := "first"
	if replay {
		attempt = "replay"
	}
	transportRequests.WithLabelValues(method, strconv.Itoa(code), attempt).Inc()
	transportDuration.WithLabelValues(method).Observe(d.Seconds())
}

// IncCredentialRefresh counts a refresh attempt outcome.
func IncCredentialRefresh(outcome string) { credentialRefreshes.WithLabelValues(outcome).Inc() }

// IncCredentialRefreshShared counts a caller that reused an in-flight refresh result.
func IncCredentialRefreshShared() { credentialRefreshShared.Inc() }
