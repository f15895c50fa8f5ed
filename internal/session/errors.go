// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package session

import (
	"unicode/utf8"

	"github.com/samber/oops"

	"github.com/barrier-gate/barrier/pkg/errutil"
)

// Error codes returned by Session operations.
const (
	// CodeInvalidCredentials: the service rejected a login.
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	// CodeSessionExpired: the refresh token was rejected or missing.
	CodeSessionExpired = "AUTH_SESSION_EXPIRED"
	// CodeNetwork: the request never produced an HTTP response.
	CodeNetwork = "NETWORK_ERROR"
	// CodeRequestFailed: the service answered with a non-2xx status.
	CodeRequestFailed = "REQUEST_FAILED"
	// CodeInvalidResponse: a 2xx response body could not be decoded.
	CodeInvalidResponse = "RESPONSE_INVALID"
	// CodeInvalidConfig: the Session configuration is unusable.
	CodeInvalidConfig = "SESSION_CONFIG_INVALID"
)

// Reasons attached to CodeSessionExpired errors under the "reason" key.
const (
	ReasonNoRefreshToken  = "no_refresh_token"
	ReasonRefreshRejected = "refresh_rejected"
	ReasonRetryRejected   = "retry_rejected"
	ReasonRefreshInvalid  = "refresh_invalid"
	ReasonLoggedOut       = "logged_out"
)

// maxErrorBody bounds how much of an error response body is kept in error context.
const maxErrorBody = 256

// IsInvalidCredentials reports whether err is a rejected login.
func IsInvalidCredentials(err error) bool {
	return errutil.HasCode(err, CodeInvalidCredentials)
}

// IsSessionExpired reports whether err means the session must be discarded.
func IsSessionExpired(err error) bool {
	return errutil.HasCode(err, CodeSessionExpired)
}

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	return errutil.HasCode(err, CodeNetwork)
}

// IsRequestFailed reports whether err is a non-2xx response.
func IsRequestFailed(err error) bool {
	return errutil.HasCode(err, CodeRequestFailed)
}

// StatusCode returns the HTTP status recorded on err, or 0.
func StatusCode(err error) int {
	v, ok := errutil.ContextValue(err, "status")
	if !ok {
		return 0
	}
	status, _ := v.(int)
	return status
}

func sessionExpired(reason string) error {
	return oops.Code(CodeSessionExpired).
		With("reason", reason).
		Errorf("session expired")
}

func networkError(method, path string, err error) error {
	return oops.Code(CodeNetwork).
		With("method", method).
		With("path", path).
		Wrap(err)
}

func requestFailed(method, path string, resp *Response) error {
	return oops.Code(CodeRequestFailed).
		With("method", method).
		With("path", path).
		With("status", resp.StatusCode).
		With("body", truncateBody(resp.Body, maxErrorBody)).
		Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
}

// truncateBody cuts b to at most n bytes without splitting a UTF-8 sequence.
func truncateBody(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return string(b[:n])
}
