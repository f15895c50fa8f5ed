// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package credstore

import (
	"context"
	"sync"

	"github.com/barrier-gate/barrier/internal/session"
)

// Memory is a process-local Store.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
	saves  int
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

// Load implements Store.
func (m *Memory) Load(_ context.Context) (*session.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fromValues(m.values), nil
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, creds session.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = toValues(creds)
	m.saves++
	return nil
}

// Clear implements Store.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = map[string]string{}
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// Set stores a single raw key. It lets tests build partial states.
func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Saves returns how many times Save has been called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
