// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package sessiontest

import (
	"sync"

	"github.com/barrier-gate/barrier/internal/session"
)

// Recorder is a session.Observer that records notifications.
type Recorder struct {
	mu        sync.Mutex
	refreshed []session.Credentials
	expired   int
}

// RefreshObserved implements session.Observer.
func (r *Recorder) RefreshObserved(_ *session.Session, creds session.Credentials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshed = append(r.refreshed, creds)
}

// SessionExpired implements session.Observer.
func (r *Recorder) SessionExpired(_ *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired++
}

// Refreshed returns every credential pair reported by RefreshObserved.
func (r *Recorder) Refreshed() []session.Credentials {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Credentials(nil), r.refreshed...)
}

// Expired returns how many times SessionExpired was called.
func (r *Recorder) Expired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired
}
