// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package session

// Credentials is an access/refresh token pair issued by the service.
// Both tokens are opaque.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Valid reports whether both tokens are present.
func (c Credentials) Valid() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// Gate is a gate the authenticated user may open.
type Gate struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type gatesResponse struct {
	Gates []Gate `json:"gates"`
}
