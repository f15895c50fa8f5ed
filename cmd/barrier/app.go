// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package main

import (
	"log/slog"
	"net/http"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/barrier-gate/barrier/internal/config"
	"github.com/barrier-gate/barrier/internal/credstore"
	"github.com/barrier-gate/barrier/internal/logging"
	"github.com/barrier-gate/barrier/internal/navigation"
	"github.com/barrier-gate/barrier/internal/registry"
	"github.com/barrier-gate/barrier/internal/session"
	"github.com/barrier-gate/barrier/pkg/errutil"
)

// Destinations the CLI navigates between.
const (
	destLogin = navigation.DefaultLogin
	destHome  = navigation.DefaultHome
	destGates = "gates"
)

// CodeAuthRequired marks commands refused because no session is active.
const CodeAuthRequired = "AUTH_REQUIRED"

const loginHint = "run `barrier login` to sign in"

// app is the per-invocation wiring shared by the session-aware commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  credstore.Store
	reg    *registry.Registry
	guard  navigation.Guard
}

// loadConfig reads the config file and the flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.Options{Path: configFile, Flags: cmd.Flags()})
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logging.Setup(logging.Options{
		Service: "barrier",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Output:  cmd.ErrOrStderr(),
	})
}

// newApp loads configuration, opens the credential store and restores any
// stored session.
func newApp(cmd *cobra.Command, deps *Deps) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	store, err := deps.StoreOpener(ctx, cfg.Store.Credstore())
	if err != nil {
		return nil, err
	}

	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Server.Timeout}
	}

	reg, err := registry.New(registry.Config{
		Store: store,
		Session: session.Config{
			BaseURL:    cfg.Server.URL,
			HTTPClient: client,
			UserAgent:  "barrier/" + version,
			Logger:     logger,
		},
		Logger: logger,
	})
	if err != nil {
		closeStore(logger, store)
		return nil, err
	}

	if _, err := reg.Restore(ctx); err != nil {
		closeStore(logger, store)
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		reg:    reg,
		guard:  navigation.Guard{Login: destLogin, Home: destHome},
	}, nil
}

// Close releases the credential store.
func (a *app) Close() {
	closeStore(a.logger, a.store)
}

func closeStore(logger *slog.Logger, store credstore.Store) {
	if err := store.Close(); err != nil {
		errutil.LogError(logger, "failed to close credential store", err)
	}
}

// requireSession returns the active session, or AUTH_REQUIRED when the
// guard would send dest to the login page.
func (a *app) requireSession(dest string) (*session.Session, error) {
	state := a.reg.State()
	if d := a.guard.Decide(state, dest); d.Action == navigation.RedirectLogin {
		return nil, oops.Code(CodeAuthRequired).
			With("destination", dest).
			Hint(loginHint).
			Errorf("not logged in")
	}
	return state.Session, nil
}

// explain adds a login hint to errors that ended the session.
func explain(err error) error {
	if session.IsSessionExpired(err) {
		return oops.In("cli").Hint(loginHint).Wrapf(err, "session expired")
	}
	return err
}
