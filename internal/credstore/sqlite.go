// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package credstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/barrier-gate/barrier/internal/session"
	"github.com/barrier-gate/barrier/internal/xdg"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLite stores credentials in a kv table of a local SQLite database.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, oops.Code(CodeOpenFailed).With("backend", "sqlite").With("path", path).Wrap(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.Code(CodeOpenFailed).With("backend", "sqlite").With("path", path).Wrap(err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close() //nolint:errcheck // init error takes precedence
			return nil, oops.Code(CodeOpenFailed).
				With("backend", "sqlite").
				With("path", path).
				Wrapf(err, "initialize database")
		}
	}

	if path != ":memory:" {
		_ = os.Chmod(path, fileMode) //nolint:errcheck // best effort on filesystems without modes
	}
	return &SQLite{db: db, path: path}, nil
}

// Load implements Store.
func (s *SQLite) Load(ctx context.Context) (*session.Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key IN (?, ?)`,
		KeyAccessToken, KeyRefreshToken)
	if err != nil {
		return nil, oops.Code(CodeLoadFailed).With("backend", "sqlite").Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, oops.Code(CodeLoadFailed).With("backend", "sqlite").Wrap(err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code(CodeLoadFailed).With("backend", "sqlite").Wrap(err)
	}
	return fromValues(values), nil
}

// Save implements Store. Both keys are written in one transaction.
func (s *SQLite) Save(ctx context.Context, creds session.Credentials) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code(CodeSaveFailed).With("backend", "sqlite").Wrap(err)
	}

	values := toValues(creds)
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, values[key]); err != nil {
			_ = tx.Rollback() //nolint:errcheck // exec error takes precedence
			return oops.Code(CodeSaveFailed).With("backend", "sqlite").With("key", key).Wrap(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return oops.Code(CodeSaveFailed).With("backend", "sqlite").Wrap(err)
	}
	return nil
}

// Clear implements Store.
func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key IN (?, ?)`,
		KeyAccessToken, KeyRefreshToken); err != nil {
		return oops.Code(CodeClearFailed).With("backend", "sqlite").Wrap(err)
	}
	return nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.With("backend", "sqlite").Wrap(err)
	}
	return nil
}
