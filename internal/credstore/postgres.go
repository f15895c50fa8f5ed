// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package credstore

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/barrier-gate/barrier/internal/session"
)

// DefaultProfile is the profile used when none is configured.
const DefaultProfile = "default"

// poolIface is the subset of *pgxpool.Pool used by Postgres, so pgxmock can
// stand in for a real pool.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Postgres stores one credential pair per profile in barrier_credentials.
// The table is created by Migrator.
type Postgres struct {
	pool    poolIface
	profile string
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool poolIface, profile string) *Postgres {
	if profile == "" {
		profile = DefaultProfile
	}
	return &Postgres{pool: pool, profile: profile}
}

// OpenPostgres connects to dsn.
func OpenPostgres(ctx context.Context, dsn, profile string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code(CodeOpenFailed).With("backend", "postgres").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code(CodeOpenFailed).With("backend", "postgres").Wrapf(err, "ping database")
	}
	return NewPostgres(pool, profile), nil
}

// Profile returns the profile this store reads and writes.
func (p *Postgres) Profile() string { return p.profile }

// Load implements Store.
func (p *Postgres) Load(ctx context.Context) (*session.Credentials, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key, value FROM barrier_credentials WHERE profile = $1`, p.profile)
	if err != nil {
		return nil, p.wrap(CodeLoadFailed, err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, p.wrap(CodeLoadFailed, err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, p.wrap(CodeLoadFailed, err)
	}
	return fromValues(values), nil
}

// Save implements Store. Both keys are written in one transaction.
func (p *Postgres) Save(ctx context.Context, creds session.Credentials) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return p.wrap(CodeSaveFailed, err)
	}

	values := toValues(creds)
	for _, key := range keys {
		_, err := tx.Exec(ctx,
			`INSERT INTO barrier_credentials (profile, key, value, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (profile, key) DO UPDATE SET value = $3, updated_at = now()`,
			p.profile, key, values[key])
		if err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // exec error takes precedence
			return oops.With("key", key).Wrap(p.wrap(CodeSaveFailed, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return p.wrap(CodeSaveFailed, err)
	}
	return nil
}

// Clear implements Store.
func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx,
		`DELETE FROM barrier_credentials WHERE profile = $1`, p.profile); err != nil {
		return p.wrap(CodeClearFailed, err)
	}
	return nil
}

// Close implements Store.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// wrap tags err with code, or with CodeSchemaMissing when the table has
// not been created yet.
func (p *Postgres) wrap(code string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return oops.Code(CodeSchemaMissing).
			With("backend", "postgres").
			With("profile", p.profile).
			Hint("run `barrier migrate` to create the credential table").
			Wrap(err)
	}
	return oops.Code(code).
		With("backend", "postgres").
		With("profile", p.profile).
		Wrap(err)
}
