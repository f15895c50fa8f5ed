// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package registry

import "github.com/barrier-gate/barrier/internal/session"

// StateKind enumerates registry states.
type StateKind int

// Registry states. NoSession is the initial state.
const (
	NoSession StateKind = iota
	Authenticated
	LoginFailed
)

func (k StateKind) String() string {
	switch k {
	case NoSession:
		return "no_session"
	case Authenticated:
		return "authenticated"
	case LoginFailed:
		return "login_failed"
	default:
		return "unknown"
	}
}

// State is a registry state. Session is set only when Kind is Authenticated.
type State struct {
	Kind    StateKind
	Session *session.Session
}

// IsAuthenticated reports whether the state holds a usable Session.
func (s State) IsAuthenticated() bool {
	return s.Kind == Authenticated && s.Session != nil
}

func (s State) String() string {
	return s.Kind.String()
}
