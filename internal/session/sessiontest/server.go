// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

// Package sessiontest provides an in-process fake of the gate-control
// service for tests.
package sessiontest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/barrier-gate/barrier/internal/session"
)

// Server is a fake gate-control service. Refresh tokens are single-use,
// like the real service.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	users         map[string]string
	gates         []session.Gate
	access        map[string]bool
	refresh       map[string]bool
	issued        int
	opened        []int
	gatesStatus   int
	refreshStatus int
	holdRefresh   chan struct{}
	holdLogout    chan struct{}

	logins   atomic.Int64
	refreshs atomic.Int64
	logouts  atomic.Int64
	listings atomic.Int64
	auth401s atomic.Int64
}

// NewServer starts a fake service. Close it with Server.Close.
func NewServer() *Server {
	s := &Server{
		users:   map[string]string{},
		access:  map[string]bool{},
		refresh: map[string]bool{},
		gates: []session.Gate{
			{ID: 1, Name: "Main entrance", Description: "Front barrier"},
			{ID: 2, Name: "Parking", Description: "Underground parking gate"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/logout", s.authorized(s.handleLogout))
	mux.HandleFunc("GET /gates/list", s.authorized(s.handleList))
	mux.HandleFunc("POST /gates/open/{id}", s.authorized(s.handleOpen))
	s.Server = httptest.NewServer(mux)
	return s
}

// AddUser registers a username/password pair accepted by login.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
}

// SetGates replaces the gate list.
func (s *Server) SetGates(gates []session.Gate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gates = gates
}

// Issue mints a valid token pair without a login call.
func (s *Server) Issue() session.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked()
}

// ExpireAccessTokens invalidates every issued access token.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = map[string]bool{}
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = map[string]bool{}
}

// RejectAllAccess makes authenticated endpoints answer 401 even for
// freshly issued tokens.
func (s *Server) RejectAllAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = nil
}

// SetGatesStatus makes the list endpoint answer status (0 restores normal behavior).
func (s *Server) SetGatesStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gatesStatus = status
}

// SetRefreshStatus makes the refresh endpoint answer status (0 restores normal behavior).
func (s *Server) SetRefreshStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = status
}

// HoldRefresh blocks refresh handlers until the returned release func is called.
func (s *Server) HoldRefresh() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holdRefresh = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// HoldLogout blocks logout handlers until the returned release func is called.
func (s *Server) HoldLogout() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holdLogout = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// LoginCalls returns the number of login requests received.
func (s *Server) LoginCalls() int { return int(s.logins.Load()) }

// RefreshCalls returns the number of refresh requests received.
func (s *Server) RefreshCalls() int { return int(s.refreshs.Load()) }

// LogoutCalls returns the number of logout requests received.
func (s *Server) LogoutCalls() int { return int(s.logouts.Load()) }

// ListCalls returns the number of gate list requests received.
func (s *Server) ListCalls() int { return int(s.listings.Load()) }

// Unauthorized returns the number of 401 answers sent by authenticated endpoints.
func (s *Server) Unauthorized() int { return int(s.auth401s.Load()) }

// Opened returns the gate ids opened so far.
func (s *Server) Opened() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.opened...)
}

// IsAccessValid reports whether token is currently accepted.
func (s *Server) IsAccessValid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access[token]
}

func (s *Server) issueLocked() session.Credentials {
	s.issued++
	creds := session.Credentials{
		AccessToken:  fmt.Sprintf("access-%d", s.issued),
		RefreshToken: fmt.Sprintf("refresh-%d", s.issued),
	}
	if s.access != nil {
		s.access[creds.AccessToken] = true
	}
	s.refresh[creds.RefreshToken] = true
	return creds
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.logins.Add(1)
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	s.mu.Lock()
	password, ok := s.users[req.Login]
	if !ok || password != req.Password {
		s.mu.Unlock()
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid login or password"})
		return
	}
	creds := s.issueLocked()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, creds)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshs.Add(1)
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	s.mu.Lock()
	hold := s.holdRefresh
	s.mu.Unlock()
	if hold != nil {
		<-hold
	}

	s.mu.Lock()
	if s.refreshStatus != 0 {
		status := s.refreshStatus
		s.mu.Unlock()
		writeJSON(w, status, map[string]string{"error": "refresh failed"})
		return
	}
	if !s.refresh[req.RefreshToken] {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
		return
	}
	delete(s.refresh, req.RefreshToken)
	creds := s.issueLocked()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, creds)
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		valid := ok && s.access[token]
		s.mu.Unlock()
		if !valid {
			s.auth401s.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized access"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.logouts.Add(1)
	s.mu.Lock()
	hold := s.holdLogout
	s.mu.Unlock()
	if hold != nil {
		<-hold
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.listings.Add(1)
	s.mu.Lock()
	status := s.gatesStatus
	gates := append([]session.Gate(nil), s.gates...)
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"error": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gates": gates})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad gate id"})
		return
	}

	s.mu.Lock()
	known := false
	for _, g := range s.gates {
		if g.ID == id {
			known = true
			break
		}
	}
	if known {
		s.opened = append(s.opened, id)
	}
	s.mu.Unlock()

	if !known {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
