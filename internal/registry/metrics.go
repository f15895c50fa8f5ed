// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package registry

import "github.com/prometheus/client_golang/prometheus"

var (
	// Transitions counts committed state transitions by target state.
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barrier_registry_transitions_total",
			Help: "Session registry state transitions by target state",
		},
		[]string{"to"},
	)

	// PersistFailures counts credential store writes that failed.
	PersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barrier_registry_persist_failures_total",
			Help: "Credential store operations that failed after a transition",
		},
		[]string{"operation"},
	)

	// AuthenticatedGauge is 1 while the registry holds a session.
	AuthenticatedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "barrier_registry_authenticated",
			Help: "1 when an authenticated session is held, 0 otherwise",
		},
	)
)

// RegisterMetrics registers registry metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Transitions, PersistFailures, AuthenticatedGauge)
}
