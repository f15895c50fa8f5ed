// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for session metrics.
const (
	OutcomeSuccess            = "success"
	OutcomeRequestFailed      = "request_failed"
	OutcomeNetworkError       = "network_error"
	OutcomeSessionExpired     = "session_expired"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeRejected           = "rejected"
	OutcomeStale              = "stale"
)

// Requests counts completed session operations.
// Use RegisterMetrics to register this with a Prometheus registry.
var Requests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "barrier_session_requests_total",
		Help: "Total number of session operations by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

// Refreshes counts token refresh attempts. A "stale" outcome is a 401
// answered by retrying with credentials another caller already refreshed.
var Refreshes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "barrier_session_refreshes_total",
		Help: "Total number of token refreshes by outcome",
	},
	[]string{"outcome"},
)

// RefreshDuration observes the latency of refresh calls to the service.
var RefreshDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "barrier_session_refresh_duration_seconds",
		Help:    "Token refresh call duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
)

// RegisterMetrics registers session metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Requests)
	reg.MustRegister(Refreshes)
	reg.MustRegister(RefreshDuration)
}

func recordRequest(operation string, err error) {
	Requests.WithLabelValues(operation, outcomeOf(err)).Inc()
}

func recordRefresh(outcome string, d time.Duration) {
	Refreshes.WithLabelValues(outcome).Inc()
	if outcome != OutcomeStale {
		RefreshDuration.Observe(d.Seconds())
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case IsSessionExpired(err):
		return OutcomeSessionExpired
	case IsInvalidCredentials(err):
		return OutcomeInvalidCredentials
	case IsNetwork(err):
		return OutcomeNetworkError
	default:
		return OutcomeRequestFailed
	}
}
