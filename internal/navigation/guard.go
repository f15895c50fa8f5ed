// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

// Package navigation decides where a client may go given the session
// registry state.
package navigation

import (
	"github.com/barrier-gate/barrier/internal/registry"
)

// Default destinations.
const (
	DefaultLogin = "login"
	DefaultHome  = "home"
)

// Action is the outcome of a navigation decision.
type Action int

// Possible actions.
const (
	Allow Action = iota
	RedirectLogin
	RedirectHome
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// Decision is where navigation to a destination ends up.
type Decision struct {
	Action Action
	// Destination is the requested destination when allowed, otherwise the
	// redirect target.
	Destination string
}

// Guard applies the two redirect rules. Zero fields fall back to
// DefaultLogin and DefaultHome.
type Guard struct {
	Login string
	Home  string
}

func (g Guard) login() string {
	if g.Login == "" {
		return DefaultLogin
	}
	return g.Login
}

func (g Guard) home() string {
	if g.Home == "" {
		return DefaultHome
	}
	return g.Home
}

// Decide returns the decision for navigating to dest in state.
func (g Guard) Decide(state registry.State, dest string) Decision {
	login := g.login()
	authenticated := state.IsAuthenticated()

	switch {
	case !authenticated && dest != login:
		return Decision{Action: RedirectLogin, Destination: login}
	case authenticated && dest == login:
		return Decision{Action: RedirectHome, Destination: g.home()}
	default:
		return Decision{Action: Allow, Destination: dest}
	}
}

// Watch subscribes to reg and calls redirect after each transition that
// moves the client across the authentication boundary: to home on becoming
// Authenticated, to login on leaving it.
func (g Guard) Watch(reg *registry.Registry, redirect func(Decision)) (stop func()) {
	wasAuthenticated := reg.State().IsAuthenticated()
	return reg.Subscribe(func(st registry.State) {
		now := st.IsAuthenticated()
		switch {
		case now && !wasAuthenticated:
			redirect(Decision{Action: RedirectHome, Destination: g.home()})
		case !now && wasAuthenticated:
			redirect(Decision{Action: RedirectLogin, Destination: g.login()})
		}
		wasAuthenticated = now
	})
}
