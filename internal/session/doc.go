// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

// Package session implements the authenticated client for the gate-control
// service.
//
// # Token lifecycle
//
// A Session holds at most one Credentials pair. Every request made through
// Session.Do carries the access token as a bearer credential. When the
// service answers 401, the Session exchanges its refresh token for a new
// pair and re-issues the request exactly once.
//
// Refresh is single-flight: however many requests observe a 401 at the
// same time, one refresh call is made and all of them wait for its
// outcome. Services that burn refresh tokens on use rely on this.
//
// # Errors
//
// Errors carry oops codes (see the Code* constants) so callers can branch
// with IsInvalidCredentials, IsSessionExpired, IsNetwork and
// IsRequestFailed without string matching.
//
// # Observers
//
// An Observer receives RefreshObserved after every successful refresh and
// SessionExpired when the Session can no longer authenticate. The registry
// package uses these to persist the latest tokens and to force logout.
package session
