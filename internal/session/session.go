// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Service endpoints.
const (
	PathLogin     = "/auth/login"
	PathLogout    = "/auth/logout"
	PathRefresh   = "/auth/refresh"
	PathGates     = "/gates/list"
	PathOpenGate  = "/gates/open/"
	refreshFlight = "refresh"
)

// Operation labels used for metrics and spans.
const (
	opLogin     = "login"
	opLogout    = "logout"
	opRequest   = "request"
	opListGates = "list_gates"
	opOpenGate  = "open_gate"
)

// maxResponseBody caps how much of a response body is read into memory.
const maxResponseBody = 4 << 20

var tracer = otel.Tracer("github.com/barrier-gate/barrier/internal/session")

// Observer is notified of token lifecycle events of a Session.
// Implementations must not call back into the Session synchronously.
type Observer interface {
	// RefreshObserved is called once per successful refresh, before any
	// request waiting on that refresh is retried.
	RefreshObserved(s *Session, creds Credentials)
	// SessionExpired is called when the Session can no longer obtain
	// valid credentials. It may be called more than once.
	SessionExpired(s *Session)
}

// Config configures a Session.
type Config struct {
	// BaseURL is the service root, e.g. "https://gates.example.com".
	BaseURL string

	// HTTPClient is used as-is when set; Timeout is then ignored.
	HTTPClient *http.Client

	// Timeout bounds each HTTP exchange made by the default client.
	// Zero leaves the transport default (no client timeout).
	Timeout time.Duration

	// UserAgent is sent on every request when non-empty.
	UserAgent string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Observer receives refresh and expiry notifications. Optional.
	Observer Observer
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return oops.Code(CodeInvalidConfig).With("field", "base_url").Errorf("base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return oops.Code(CodeInvalidConfig).With("field", "base_url").Wrap(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return oops.Code(CodeInvalidConfig).
			With("field", "base_url").
			Errorf("base URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return oops.Code(CodeInvalidConfig).With("field", "base_url").Errorf("base URL has no host")
	}
	if c.Timeout < 0 {
		return oops.Code(CodeInvalidConfig).With("field", "timeout").Errorf("timeout cannot be negative")
	}
	return nil
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return oops.Code(CodeInvalidResponse).
			With("status", r.StatusCode).
			Wrap(err)
	}
	return nil
}

// request is an outgoing call, immutable across attempts.
type request struct {
	method string
	path   string
	body   []byte
}

// attempt tracks how a request is being sent; a retried attempt never
// triggers another refresh.
type attempt struct {
	retried bool
}

// Session is an authenticated client of the gate-control service.
// It is safe for concurrent use.
type Session struct {
	id        ulid.ULID
	baseURL   *url.URL
	client    *http.Client
	userAgent string
	logger    *slog.Logger
	observer  Observer

	mu    sync.RWMutex
	creds *Credentials

	refreshes singleflight.Group
	// revoked is set once the service rejects the refresh token; later
	// 401s fail without another refresh call. Login clears it.
	revoked atomic.Bool
}

// New creates a Session. creds pre-populates the Session (e.g. restored
// from storage); nil leaves it unauthenticated until Login.
func New(cfg Config, creds *Credentials) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, _ := url.Parse(cfg.BaseURL) //nolint:errcheck // checked by Validate

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:        ulid.Make(),
		baseURL:   base,
		client:    client,
		userAgent: cfg.UserAgent,
		observer:  cfg.Observer,
	}
	s.logger = logger.With("session_id", s.id.String())
	if creds != nil {
		c := *creds
		s.creds = &c
	}

	if base.Scheme == "http" && !isLoopback(base.Hostname()) {
		s.logger.Warn("service URL is not using TLS; credentials will be sent in clear text",
			"host", base.Host)
	}
	return s, nil
}

// ID identifies this Session instance.
func (s *Session) ID() ulid.ULID {
	return s.id
}

// Credentials returns a copy of the current credentials and whether any are set.
func (s *Session) Credentials() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return Credentials{}, false
	}
	return *s.creds, true
}

func (s *Session) accessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return ""
	}
	return s.creds.AccessToken
}

func (s *Session) setCredentials(creds *Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if creds == nil {
		s.creds = nil
		return
	}
	c := *creds
	s.creds = &c
}

// replaceCredentials installs next only if the current pair is still old.
func (s *Session) replaceCredentials(old, next Credentials) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil || *s.creds != old {
		return false
	}
	s.creds = &next
	return true
}

// Login exchanges username and password for credentials. On rejection the
// Session's credentials are left untouched.
func (s *Session) Login(ctx context.Context, username, password string) (Credentials, error) {
	ctx, span := tracer.Start(ctx, "session.Login")
	defer span.End()

	creds, err := s.login(ctx, username, password)
	recordRequest(opLogin, err)
	endSpan(span, err)
	return creds, err
}

func (s *Session) login(ctx context.Context, username, password string) (Credentials, error) {
	body, err := json.Marshal(loginRequest{Login: username, Password: password})
	if err != nil {
		return Credentials{}, oops.With("operation", "encode login request").Wrap(err)
	}

	resp, err := s.send(ctx, http.MethodPost, PathLogin, body, "")
	if err != nil {
		return Credentials{}, err
	}
	if !isSuccess(resp.StatusCode) {
		s.logger.InfoContext(ctx, "login rejected", "username", username, "status", resp.StatusCode)
		return Credentials{}, oops.Code(CodeInvalidCredentials).
			With("status", resp.StatusCode).
			With("username", username).
			Errorf("invalid username or password")
	}

	var creds Credentials
	if err := resp.Decode(&creds); err != nil {
		return Credentials{}, oops.With("operation", opLogin).Wrap(err)
	}
	if !creds.Valid() {
		return Credentials{}, oops.Code(CodeInvalidResponse).
			With("operation", opLogin).
			Errorf("login response is missing tokens")
	}

	s.setCredentials(&creds)
	s.revoked.Store(false)
	s.logger.InfoContext(ctx, "logged in", "username", username)
	return creds, nil
}

// Logout tells the service to end the session, then clears local
// credentials whatever the outcome of that call. An expired access token
// is refreshed once, like any authenticated request.
func (s *Session) Logout(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session.Logout")
	defer span.End()

	_, err := s.do(ctx, request{method: http.MethodPost, path: PathLogout}, attempt{})
	s.setCredentials(nil)
	recordRequest(opLogout, err)
	endSpan(span, err)
	return err
}

// Do sends an authenticated request. body, when non-nil, is sent as JSON.
//
// A 401 answer triggers a refresh followed by exactly one re-issue of the
// request. Any other non-2xx status is returned as a REQUEST_FAILED error.
func (s *Session) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	return s.call(ctx, opRequest, method, path, body)
}

func (s *Session) call(ctx context.Context, operation, method, path string, body any) (*Response, error) {
	ctx, span := tracer.Start(ctx, "session."+operation,
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	defer span.End()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			err = oops.With("operation", "encode request body").With("path", path).Wrap(err)
			endSpan(span, err)
			return nil, err
		}
	}

	resp, err := s.do(ctx, request{method: method, path: path, body: payload}, attempt{})
	recordRequest(operation, err)
	endSpan(span, err)
	return resp, err
}

func (s *Session) do(ctx context.Context, req request, at attempt) (*Response, error) {
	token := s.accessToken()
	resp, err := s.send(ctx, req.method, req.path, req.body, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if at.retried {
			s.expire(ctx, ReasonRetryRejected)
			return nil, sessionExpired(ReasonRetryRejected)
		}
		if _, err := s.refreshAfter(ctx, token); err != nil {
			return nil, err
		}
		return s.do(ctx, req, attempt{retried: true})
	}

	if !isSuccess(resp.StatusCode) {
		return nil, requestFailed(req.method, req.path, resp)
	}
	return resp, nil
}

// refreshAfter returns credentials newer than the ones carrying staleToken,
// joining the in-flight refresh if there is one.
func (s *Session) refreshAfter(ctx context.Context, staleToken string) (Credentials, error) {
	if s.revoked.Load() {
		return Credentials{}, sessionExpired(ReasonRefreshRejected)
	}
	cur, ok := s.Credentials()
	if !ok || cur.RefreshToken == "" {
		s.expire(ctx, ReasonNoRefreshToken)
		return Credentials{}, sessionExpired(ReasonNoRefreshToken)
	}
	if cur.AccessToken != staleToken {
		// Another caller refreshed after this request was sent.
		recordRefresh(OutcomeStale, 0)
		return cur, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := s.refreshes.DoChan(refreshFlight, func() (any, error) {
		return s.refresh(detached, staleToken)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credentials{}, res.Err //nolint:wrapcheck // shared by all joiners, already coded
		}
		return res.Val.(Credentials), nil //nolint:forcetypeassert // refresh always returns Credentials
	case <-ctx.Done():
		return Credentials{}, networkError(http.MethodPost, PathRefresh, ctx.Err())
	}
}

// refresh performs the refresh exchange. It runs at most once at a time
// per Session.
func (s *Session) refresh(ctx context.Context, staleToken string) (Credentials, error) {
	if s.revoked.Load() {
		return Credentials{}, sessionExpired(ReasonRefreshRejected)
	}
	cur, ok := s.Credentials()
	if !ok || cur.RefreshToken == "" {
		s.expire(ctx, ReasonNoRefreshToken)
		return Credentials{}, sessionExpired(ReasonNoRefreshToken)
	}
	if cur.AccessToken != staleToken {
		recordRefresh(OutcomeStale, 0)
		return cur, nil
	}

	ctx, span := tracer.Start(ctx, "session.refresh")
	defer span.End()

	start := time.Now()
	s.logger.DebugContext(ctx, "refreshing credentials")

	next, err := s.exchangeRefresh(ctx, cur.RefreshToken)
	elapsed := time.Since(start)
	switch {
	case err == nil:
	case IsNetwork(err):
		recordRefresh(OutcomeNetworkError, elapsed)
		endSpan(span, err)
		return Credentials{}, err
	default:
		recordRefresh(OutcomeRejected, elapsed)
		endSpan(span, err)
		s.revoked.Store(true)
		s.expire(ctx, ReasonRefreshRejected)
		return Credentials{}, err
	}

	if !s.replaceCredentials(cur, next) {
		// Logged out while the refresh was in flight.
		err := sessionExpired(ReasonLoggedOut)
		endSpan(span, err)
		return Credentials{}, err
	}

	recordRefresh(OutcomeSuccess, elapsed)
	s.logger.DebugContext(ctx, "credentials refreshed", "duration", elapsed)
	if s.observer != nil {
		s.observer.RefreshObserved(s, next)
	}
	return next, nil
}

func (s *Session) exchangeRefresh(ctx context.Context, refreshToken string) (Credentials, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return Credentials{}, oops.With("operation", "encode refresh request").Wrap(err)
	}

	resp, err := s.send(ctx, http.MethodPost, PathRefresh, body, "")
	if err != nil {
		return Credentials{}, err
	}
	if !isSuccess(resp.StatusCode) {
		s.logger.WarnContext(ctx, "refresh rejected", "status", resp.StatusCode)
		return Credentials{}, oops.Code(CodeSessionExpired).
			With("reason", ReasonRefreshRejected).
			With("status", resp.StatusCode).
			Errorf("session expired")
	}

	var next Credentials
	if err := json.Unmarshal(resp.Body, &next); err != nil || !next.Valid() {
		// The old refresh token may already be spent; nothing to fall back to.
		return Credentials{}, oops.Code(CodeSessionExpired).
			With("reason", ReasonRefreshInvalid).
			With("status", resp.StatusCode).
			Errorf("session expired: malformed refresh response")
	}
	return next, nil
}

func (s *Session) expire(ctx context.Context, reason string) {
	s.logger.WarnContext(ctx, "session expired", "reason", reason)
	if s.observer != nil {
		s.observer.SessionExpired(s)
	}
}

// send performs one HTTP exchange. token, when non-empty, is sent as a
// bearer credential.
func (s *Session) send(ctx context.Context, method, path string, body []byte, token string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL.JoinPath(path).String(), reader)
	if err != nil {
		return nil, oops.With("method", method).With("path", path).Wrap(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := s.client.Do(req)
	if err != nil {
		return nil, networkError(method, path, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, networkError(method, path, err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
