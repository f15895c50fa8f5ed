// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

// Package credstore persists the credential pair of a session so that it
// survives process restarts.
//
// Every backend stores the pair under two well-known keys, KeyAccessToken
// and KeyRefreshToken. A store that holds only one of them has nothing to
// restore.
package credstore

import (
	"context"

	"github.com/barrier-gate/barrier/internal/session"
)

// Well-known storage keys.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// Error codes returned by stores.
const (
	CodeLoadFailed     = "CREDSTORE_LOAD_FAILED"
	CodeSaveFailed     = "CREDSTORE_SAVE_FAILED"
	CodeClearFailed    = "CREDSTORE_CLEAR_FAILED"
	CodeOpenFailed     = "CREDSTORE_OPEN_FAILED"
	CodeUnknownBackend = "CREDSTORE_BACKEND_UNKNOWN"
	CodeSchemaMissing  = "CREDSTORE_SCHEMA_MISSING"
)

// Store is a durable key-value location for one credential pair.
type Store interface {
	// Load returns the stored credentials, or nil when none are stored.
	Load(ctx context.Context) (*session.Credentials, error)
	// Save overwrites both keys.
	Save(ctx context.Context, creds session.Credentials) error
	// Clear removes both keys. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
	// Close releases the backend.
	Close() error
}

// fromValues builds credentials from the stored key/value pairs.
func fromValues(values map[string]string) *session.Credentials {
	access, ok := values[KeyAccessToken]
	if !ok || access == "" {
		return nil
	}
	refresh, ok := values[KeyRefreshToken]
	if !ok || refresh == "" {
		return nil
	}
	return &session.Credentials{AccessToken: access, RefreshToken: refresh}
}

func toValues(creds session.Credentials) map[string]string {
	return map[string]string{
		KeyAccessToken:  creds.AccessToken,
		KeyRefreshToken: creds.RefreshToken,
	}
}

// keys lists the storage keys in a stable order.
var keys = []string{KeyAccessToken, KeyRefreshToken}
