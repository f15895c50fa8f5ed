// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package main

import (
	"context"
	"net/http"

	"golang.org/x/term"

	"github.com/barrier-gate/barrier/internal/credstore"
	"github.com/barrier-gate/barrier/internal/observability"
)

// Deps contains injectable dependencies for the CLI commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// HTTPClient is used by every session.
	// Default: a client bounded by the configured server timeout
	HTTPClient *http.Client

	// StoreOpener opens the credential store.
	// Default: credstore.Open
	StoreOpener func(ctx context.Context, cfg credstore.Config) (credstore.Store, error)

	// ObservabilityServerFactory creates the watch metrics server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// MigratorFactory creates a schema migrator for the postgres store.
	// Default: credstore.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// IsTerminal reports whether fd is a terminal.
	// Default: term.IsTerminal
	IsTerminal func(fd int) bool

	// ReadPassword reads a line from the terminal fd without echo.
	// Default: term.ReadPassword
	ReadPassword func(fd int) ([]byte, error)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Migrator interface wraps the methods used from credstore.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = credstore.Open
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := credstore.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.IsTerminal == nil {
		out.IsTerminal = term.IsTerminal
	}
	if out.ReadPassword == nil {
		out.ReadPassword = term.ReadPassword
	}
	return &out
}
