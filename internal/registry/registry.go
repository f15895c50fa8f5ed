// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

// Package registry holds the process-wide authority on whether a usable
// Session exists, and keeps the credential store in step with it.
//
// Transitions are serialized; a transition may wait on the network (login,
// logout) but readers of State never wait on a transition. Listeners are
// called after each committed transition while the transition is still
// held, so they must not call back into the Registry or issue requests on
// the Session synchronously.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/barrier-gate/barrier/internal/credstore"
	"github.com/barrier-gate/barrier/internal/session"
	"github.com/barrier-gate/barrier/pkg/errutil"
)

// Error codes.
const (
	CodeInvalidConfig = "REGISTRY_CONFIG_INVALID"
)

// Config configures a Registry.
type Config struct {
	// Store persists the current credentials. Required.
	Store credstore.Store
	// Session configures every Session the registry creates. Its Observer
	// is replaced by the registry.
	Session session.Config
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type listener struct {
	id int
	fn func(State)
}

// Registry is the session state machine. It is safe for concurrent use.
type Registry struct {
	store      credstore.Store
	sessionCfg session.Config
	logger     *slog.Logger

	// transition serializes state changes together with their persistence.
	transition sync.Mutex

	mu        sync.RWMutex
	state     State
	listeners []listener
	nextID    int
}

// New creates a Registry in the NoSession state.
func New(cfg Config) (*Registry, error) {
	if cfg.Store == nil {
		return nil, oops.Code(CodeInvalidConfig).With("field", "store").Errorf("credential store is required")
	}
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		store:  cfg.Store,
		logger: logger.With("component", "registry"),
	}
	r.sessionCfg = cfg.Session
	r.sessionCfg.Observer = r
	if r.sessionCfg.Logger == nil {
		r.sessionCfg.Logger = logger
	}
	AuthenticatedGauge.Set(0)
	return r, nil
}

// State returns the current state.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Session returns the current Session when authenticated.
func (r *Registry) Session() (*session.Session, bool) {
	st := r.State()
	if !st.IsAuthenticated() {
		return nil, false
	}
	return st.Session, true
}

// Subscribe registers fn to be called with every new state, in
// registration order. fn runs while the registry is mid-transition and
// must not call back into it. The returned func removes the subscription.
func (r *Registry) Subscribe(fn func(State)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners = append(r.listeners, listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, l := range r.listeners {
				if l.id == id {
					r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Restore builds a Session from stored credentials. With nothing stored
// the registry stays in NoSession. An already authenticated registry is
// left untouched.
func (r *Registry) Restore(ctx context.Context) (State, error) {
	r.transition.Lock()
	defer r.transition.Unlock()

	if cur := r.State(); cur.IsAuthenticated() {
		return cur, nil
	}

	creds, err := r.store.Load(ctx)
	if err != nil {
		errutil.LogWarn(ctx, r.logger, "failed to load stored credentials", err)
		return r.State(), oops.With("operation", "restore").Wrap(err)
	}
	if creds == nil {
		r.logger.DebugContext(ctx, "no stored credentials")
		return r.State(), nil
	}

	s, err := session.New(r.sessionCfg, creds)
	if err != nil {
		return r.State(), oops.With("operation", "restore").Wrap(err)
	}
	st := r.commit(ctx, State{Kind: Authenticated, Session: s})
	r.logger.InfoContext(ctx, "session restored", "session_id", s.ID().String())
	return st, nil
}

// Login authenticates a fresh Session. On success the registry becomes
// Authenticated and the credentials are persisted; on failure it becomes
// LoginFailed and the store is cleared. A persistence failure is returned
// but does not undo the transition.
func (r *Registry) Login(ctx context.Context, username, password string) (State, error) {
	r.transition.Lock()
	defer r.transition.Unlock()

	s, err := session.New(r.sessionCfg, nil)
	if err != nil {
		return r.State(), oops.With("operation", "login").Wrap(err)
	}

	creds, err := s.Login(ctx, username, password)
	if err != nil {
		st := r.commit(ctx, State{Kind: LoginFailed})
		if clearErr := r.clear(ctx); clearErr != nil {
			errutil.LogError(r.logger, "failed to clear credentials after failed login", clearErr)
		}
		return st, err
	}

	st := r.commit(ctx, State{Kind: Authenticated, Session: s})
	if err := r.save(ctx, creds); err != nil {
		errutil.LogError(r.logger, "failed to persist credentials after login", err)
		return st, err
	}
	return st, nil
}

// Logout returns to NoSession and clears the store, then ends the former
// Session on the server (best effort). The server call runs after the
// transition lock is released: it may refresh, and the Session's
// notifications must not wait on the lock it holds. Only a store failure
// is returned.
func (r *Registry) Logout(ctx context.Context) error {
	s, clearErr := r.logoutLocally(ctx)

	if s != nil {
		if err := s.Logout(ctx); err != nil {
			errutil.LogWarn(ctx, r.logger, "server logout failed; local session already cleared", err)
		}
	}
	return clearErr
}

func (r *Registry) logoutLocally(ctx context.Context) (*session.Session, error) {
	r.transition.Lock()
	defer r.transition.Unlock()

	s, _ := r.Session()
	r.commit(ctx, State{Kind: NoSession})
	if err := r.clear(ctx); err != nil {
		errutil.LogError(r.logger, "failed to clear credentials on logout", err)
		return s, err
	}
	return s, nil
}

// RefreshObserved persists the credentials of a successful refresh. It
// implements session.Observer. Refreshes of a superseded Session are
// ignored.
func (r *Registry) RefreshObserved(s *session.Session, creds session.Credentials) {
	r.transition.Lock()
	defer r.transition.Unlock()

	if !r.isCurrent(s) {
		r.logger.Debug("ignoring refresh of superseded session", "session_id", s.ID().String())
		return
	}
	if err := r.save(context.Background(), creds); err != nil {
		errutil.LogError(r.logger, "failed to persist refreshed credentials", err)
	}
}

// SessionExpired forces a logout without calling the server. It implements
// session.Observer. Expiry of a superseded Session is ignored.
func (r *Registry) SessionExpired(s *session.Session) {
	r.transition.Lock()
	defer r.transition.Unlock()

	if !r.isCurrent(s) {
		return
	}
	ctx := context.Background()
	r.logger.WarnContext(ctx, "session expired; logging out", "session_id", s.ID().String())
	r.commit(ctx, State{Kind: NoSession})
	if err := r.clear(ctx); err != nil {
		errutil.LogError(r.logger, "failed to clear credentials after expiry", err)
	}
}

func (r *Registry) isCurrent(s *session.Session) bool {
	st := r.State()
	return st.IsAuthenticated() && st.Session == s
}

// commit publishes next and notifies listeners. Callers hold transition.
func (r *Registry) commit(ctx context.Context, next State) State {
	r.mu.Lock()
	prev := r.state
	r.state = next
	listeners := append([]listener(nil), r.listeners...)
	r.mu.Unlock()

	Transitions.WithLabelValues(next.Kind.String()).Inc()
	if next.IsAuthenticated() {
		AuthenticatedGauge.Set(1)
	} else {
		AuthenticatedGauge.Set(0)
	}
	r.logger.DebugContext(ctx, "session state changed", "from", prev.Kind.String(), "to", next.Kind.String())

	for _, l := range listeners {
		l.fn(next)
	}
	return next
}

func (r *Registry) save(ctx context.Context, creds session.Credentials) error {
	if err := r.store.Save(ctx, creds); err != nil {
		PersistFailures.WithLabelValues("save").Inc()
		return oops.With("operation", "persist credentials").Wrap(err)
	}
	return nil
}

func (r *Registry) clear(ctx context.Context) error {
	if err := r.store.Clear(ctx); err != nil {
		PersistFailures.WithLabelValues("clear").Inc()
		return oops.With("operation", "clear credentials").Wrap(err)
	}
	return nil
}
