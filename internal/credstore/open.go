// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package credstore

import (
	"context"

	"github.com/samber/oops"

	"github.com/barrier-gate/barrier/internal/xdg"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Backends lists every supported backend name.
var Backends = []string{BackendFile, BackendSQLite, BackendPostgres, BackendMemory}

// Config selects and configures a backend.
type Config struct {
	// Backend is one of the Backend* names. Empty selects BackendFile.
	Backend string
	// Path is the file or SQLite database path. Empty uses the XDG default.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
	// Profile keys the Postgres rows.
	Profile string
}

// Open returns the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		path := cfg.Path
		if path == "" {
			var err error
			if path, err = xdg.CredentialsFile(); err != nil {
				return nil, oops.Code(CodeOpenFailed).With("backend", BackendFile).Wrap(err)
			}
		}
		return NewFile(path), nil

	case BackendSQLite:
		path := cfg.Path
		if path == "" {
			var err error
			if path, err = xdg.CredentialsDB(); err != nil {
				return nil, oops.Code(CodeOpenFailed).With("backend", BackendSQLite).Wrap(err)
			}
		}
		return OpenSQLite(ctx, path)

	case BackendPostgres:
		if cfg.DSN == "" {
			return nil, oops.Code(CodeOpenFailed).
				With("backend", BackendPostgres).
				With("field", "store.dsn").
				Errorf("postgres backend requires a DSN")
		}
		return OpenPostgres(ctx, cfg.DSN, cfg.Profile)

	case BackendMemory:
		return NewMemory(), nil

	default:
		return nil, oops.Code(CodeUnknownBackend).
			With("backend", cfg.Backend).
			Errorf("unknown credential store backend %q", cfg.Backend)
	}
}
