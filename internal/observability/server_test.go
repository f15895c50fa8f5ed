// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barrier-gate/barrier/internal/credstore"
	"github.com/barrier-gate/barrier/internal/registry"
	"github.com/barrier-gate/barrier/internal/session"
	"github.com/barrier-gate/barrier/internal/session/sessiontest"
)

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, strings.TrimSpace(string(body))
}

func TestServer_ReadinessFollowsRegistryState(t *testing.T) {
	srv := sessiontest.NewServer()
	defer srv.Close()
	srv.AddUser("alice", "s3cret")
	reg, err := registry.New(registry.Config{
		Store:   credstore.NewMemory(),
		Session: session.Config{BaseURL: srv.URL, HTTPClient: srv.Client()},
	})
	require.NoError(t, err)
	ctx := context.Background()

	server := startServer(t, func() bool { return reg.State().IsAuthenticated() })
	readiness := func() int {
		status, _ := get(t, server, "/healthz/readiness")
		return status
	}

	assert.Equal(t, http.StatusServiceUnavailable, readiness(), "no session")

	_, err = reg.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, readiness(), "after login")

	s, ok := reg.Session()
	require.True(t, ok)
	srv.ExpireAccessTokens()
	srv.RevokeRefreshTokens()
	_, err = s.GetGates(ctx)
	require.True(t, session.IsSessionExpired(err))
	assert.Equal(t, http.StatusServiceUnavailable, readiness(), "after expiry")

	_, err = reg.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, readiness(), "after second login")

	require.NoError(t, reg.Logout(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, readiness(), "after logout")
}

func TestServer_ReadinessWithNilChecker(t *testing.T) {
	server := startServer(t, nil)

	status, body := get(t, server, "/healthz/readiness")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, func() bool { return false })

	status, body := get(t, server, "/healthz/liveness")

	assert.Equal(t, http.StatusOK, status, "liveness ignores readiness")
	assert.Equal(t, "ok", body)
}

func TestMetrics_ObservePollOutcomes(t *testing.T) {
	srv := sessiontest.NewServer()
	defer srv.Close()
	newSession := func() *session.Session {
		creds := srv.Issue()
		s, err := session.New(session.Config{BaseURL: srv.URL, HTTPClient: srv.Client()}, &creds)
		require.NoError(t, err)
		return s
	}
	ctx := context.Background()
	m := NewMetrics(prometheus.NewRegistry())

	gates, err := newSession().GetGates(ctx)
	require.NoError(t, err)
	m.ObservePoll(len(gates), err)

	srv.SetGatesStatus(http.StatusInternalServerError)
	_, err = newSession().GetGates(ctx)
	require.True(t, session.IsRequestFailed(err))
	m.ObservePoll(0, err)
	srv.SetGatesStatus(0)

	expiring := newSession()
	srv.ExpireAccessTokens()
	srv.RevokeRefreshTokens()
	_, err = expiring.GetGates(ctx)
	require.True(t, session.IsSessionExpired(err))
	m.ObservePoll(0, err)

	unreachable := newSession()
	srv.Close()
	_, err = unreachable.GetGates(ctx)
	require.True(t, session.IsNetwork(err))
	m.ObservePoll(0, err)

	for outcome, want := range map[string]float64{
		session.OutcomeSuccess:        1,
		session.OutcomeRequestFailed:  1,
		session.OutcomeSessionExpired: 1,
		session.OutcomeNetworkError:   1,
	} {
		assert.InDelta(t, want, testutil.ToFloat64(m.PollsTotal.WithLabelValues(outcome)), 0, outcome)
	}
	assert.InDelta(t, float64(len(gates)), testutil.ToFloat64(m.GatesVisible), 0, "failed polls keep the last count")
	assert.Positive(t, testutil.ToFloat64(m.LastPoll))
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := startServer(t, nil)
	server.Metrics().ObservePoll(3, nil)

	status, body := get(t, server, "/metrics")

	require.Equal(t, http.StatusOK, status)
	for _, want := range []string{
		"go_goroutines",
		`barrier_watch_polls_total{outcome="success"} 1`,
		"barrier_watch_gates_visible 3",
		"barrier_session_refresh_duration_seconds",
		"barrier_registry_authenticated",
	} {
		assert.Contains(t, body, want)
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)

	_, err := server.Start()

	assert.Error(t, err)
}

func TestServer_ErrorChannel(t *testing.T) {
	t.Run("reports serve errors", func(t *testing.T) {
		server := NewServer("127.0.0.1:0", nil)
		errCh, err := server.Start()
		require.NoError(t, err)
		defer func() { _ = server.Stop(context.Background()) }()

		_ = server.listener.Close()

		select {
		case serveErr := <-errCh:
			assert.Error(t, serveErr)
		case <-time.After(2 * time.Second):
			t.Fatal("serve error not reported")
		}
	})

	t.Run("closes on shutdown", func(t *testing.T) {
		server := NewServer("127.0.0.1:0", nil)
		errCh, err := server.Start()
		require.NoError(t, err)

		require.NoError(t, server.Stop(context.Background()))
		require.NoError(t, server.Stop(context.Background()), "stop is idempotent")

		select {
		case err, ok := <-errCh:
			assert.False(t, ok && err != nil, "unexpected error: %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("error channel not closed")
		}
	})
}
