// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/barrier-gate/barrier/internal/registry"
	"github.com/barrier-gate/barrier/internal/session"
)

// ReadinessChecker returns whether the client holds a usable session.
type ReadinessChecker func() bool

// Metrics contains the watch-mode metrics.
type Metrics struct {
	PollsTotal   *prometheus.CounterVec
	GatesVisible prometheus.Gauge
	LastPoll     prometheus.Gauge
}

// NewMetrics creates watch metrics and registers them, together with the
// session and registry metrics, on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barrier_watch_polls_total",
				Help: "Gate list polls by outcome",
			},
			[]string{"outcome"},
		),
		GatesVisible: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "barrier_watch_gates_visible",
				Help: "Number of gates returned by the last successful poll",
			},
		),
		LastPoll: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "barrier_watch_last_poll_timestamp_seconds",
				Help: "Unix time of the last successful poll",
			},
		),
	}

	reg.MustRegister(m.PollsTotal, m.GatesVisible, m.LastPoll)
	session.RegisterMetrics(reg)
	registry.RegisterMetrics(reg)

	return m
}

// ObservePoll records the outcome of one gate list poll.
func (m *Metrics) ObservePoll(gates int, err error) {
	if err != nil {
		m.PollsTotal.WithLabelValues(pollOutcome(err)).Inc()
		return
	}
	m.PollsTotal.WithLabelValues(session.OutcomeSuccess).Inc()
	m.GatesVisible.Set(float64(gates))
	m.LastPoll.SetToCurrentTime()
}

func pollOutcome(err error) string {
	switch {
	case session.IsSessionExpired(err):
		return session.OutcomeSessionExpired
	case session.IsNetwork(err):
		return session.OutcomeNetworkError
	default:
		return session.OutcomeRequestFailed
	}
}

// Server provides HTTP endpoints for observability (metrics and health probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	promReg    *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates an observability server listening on addr
// ("127.0.0.1:9180", or ":0" for an ephemeral port).
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Private registry; the global one is never touched.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:    addr,
		promReg:  reg,
		metrics:  NewMetrics(reg),
		isReady:  readinessChecker,
	}
}

// Metrics returns the watch metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving /metrics and the /healthz probes. The returned
// channel receives a serve error, if any, and is closed when the server
// stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleLiveness returns 200 while the process runs.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 while authenticated, 503 otherwise.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
