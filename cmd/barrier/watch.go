// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/barrier-gate/barrier/internal/config"
	"github.com/barrier-gate/barrier/internal/navigation"
	"github.com/barrier-gate/barrier/internal/observability"
	"github.com/barrier-gate/barrier/internal/session"
	"github.com/barrier-gate/barrier/pkg/errutil"
)

// CodeServerFailed marks a background server that stopped unexpectedly.
const CodeServerFailed = "SERVER_FAILED"

type watchConfig struct {
	maxPolls int
}

func newWatchCmd(deps *Deps) *cobra.Command {
	cfg := &watchConfig{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the gate list and keep the session alive",
		Long: `Poll the gate list every --interval, refreshing the session as tokens
expire, and serve Prometheus metrics and health checks on --metrics-addr.
Stops on SIGINT/SIGTERM or when the session can no longer be refreshed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, deps, cfg)
		},
	}

	def := config.Default()
	cmd.Flags().Duration(config.FlagInterval, def.Watch.Interval, "poll interval")
	cmd.Flags().String(config.FlagMetricsAddr, def.Watch.MetricsAddr, "metrics and health listen address (empty disables)")
	cmd.Flags().IntVar(&cfg.maxPolls, "max-polls", 0, "stop after this many polls (0 runs until interrupted)")

	return cmd
}

func runWatch(cmd *cobra.Command, deps *Deps, cfg *watchConfig) error {
	a, err := newApp(cmd, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.requireSession(destHome)
	if err != nil {
		return err
	}

	sigCtx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancelCause(sigCtx)
	defer cancel(nil)

	var metrics *observability.Metrics
	var obsServer ObservabilityServer
	if addr := a.cfg.Watch.MetricsAddr; addr != "" {
		obsServer = deps.ObservabilityServerFactory(addr, func() bool { return a.reg.State().IsAuthenticated() })
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code(CodeServerFailed).With("server", "observability").Wrap(err)
		}
		defer stopServer(a.logger, obsServer)
		go monitorServerErrors(ctx, a.logger, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		a.logger.Info("observability server started", "addr", obsServer.Addr())
	}

	expired := make(chan struct{})
	var expiredOnce sync.Once
	stopGuard := a.guard.Watch(a.reg, func(d navigation.Decision) {
		a.logger.Info("navigation redirect", "action", d.Action.String(), "destination", d.Destination)
		if d.Action == navigation.RedirectLogin {
			expiredOnce.Do(func() { close(expired) })
		}
	})
	defer stopGuard()

	cmd.Printf("Watching %s every %s\n", a.cfg.Server.URL, a.cfg.Watch.Interval)

	ticker := time.NewTicker(a.cfg.Watch.Interval)
	defer ticker.Stop()

	polls := 0
	for {
		pollGates(ctx, a.logger, s, metrics)
		polls++
		if cfg.maxPolls > 0 && polls >= cfg.maxPolls {
			a.logger.Info("poll limit reached", "polls", polls)
			return nil
		}

		select {
		case <-expired:
			return errWatchExpired()
		default:
		}

		select {
		case <-ctx.Done():
			if cause := context.Cause(ctx); errutil.HasCode(cause, CodeServerFailed) {
				return cause
			}
			a.logger.Info("shutting down", "polls", polls)
			return nil
		case <-expired:
			return errWatchExpired()
		case <-ticker.C:
		}
	}
}

func errWatchExpired() error {
	return oops.Code(session.CodeSessionExpired).
		Hint(loginHint).
		Errorf("session expired; watch stopped")
}

// pollGates fetches the gate list once and records the outcome.
func pollGates(ctx context.Context, logger *slog.Logger, s *session.Session, metrics *observability.Metrics) {
	gates, err := s.GetGates(ctx)
	if metrics != nil {
		metrics.ObservePoll(len(gates), err)
	}
	if err != nil {
		errutil.LogWarn(ctx, logger, "gate poll failed", err)
		return
	}
	logger.InfoContext(ctx, "gates polled", "count", len(gates))
}

func stopServer(logger *slog.Logger, srv ObservabilityServer) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx with a SERVER_FAILED cause when the server
// reports an error. It exits when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, logger *slog.Logger, cancel context.CancelCauseFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel(oops.Code(CodeServerFailed).With("server", serverName).Wrap(err))
		}
	case <-ctx.Done():
	}
}
