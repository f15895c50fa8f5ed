// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package credstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barrier-gate/barrier/internal/credstore"
	"github.com/barrier-gate/barrier/internal/session"
)

// backends returns a fresh instance of every backend that runs without
// external services.
func backends(t *testing.T) map[string]credstore.Store {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := credstore.OpenSQLite(context.Background(), filepath.Join(dir, "creds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]credstore.Store{
		"memory": credstore.NewMemory(),
		"file":   credstore.NewFile(filepath.Join(dir, "state", "credentials.yaml")),
		"sqlite": sqlite,
	}
}

func TestStore_EmptyLoadsNothing(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			creds, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Nil(t, creds)
		})
	}
}

func TestStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := session.Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"}
			require.NoError(t, store.Save(ctx, want))

			got, err := store.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, want, *got)

			require.NoError(t, store.Clear(ctx))
			got, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, session.Credentials{AccessToken: "a1", RefreshToken: "r1"}))
			require.NoError(t, store.Save(ctx, session.Credentials{AccessToken: "a2", RefreshToken: "r2"}))

			got, err := store.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, session.Credentials{AccessToken: "a2", RefreshToken: "r2"}, *got)
		})
	}
}

func TestStore_ClearEmptyIsNoop(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, store.Clear(context.Background()))
		})
	}
}

func TestMemory_PartialLoadsNothing(t *testing.T) {
	store := credstore.NewMemory()
	store.Set(credstore.KeyAccessToken, "access-only")

	creds, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestMemory_CountsSaves(t *testing.T) {
	store := credstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, session.Credentials{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, store.Save(ctx, session.Credentials{AccessToken: "b", RefreshToken: "s"}))
	assert.Equal(t, 2, store.Saves())
}
