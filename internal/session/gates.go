// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package session

import (
	"context"
	"net/http"
	"strconv"

	"github.com/samber/oops"
)

// GetGates lists the gates the authenticated user may open.
func (s *Session) GetGates(ctx context.Context) ([]Gate, error) {
	resp, err := s.call(ctx, opListGates, http.MethodGet, PathGates, nil)
	if err != nil {
		return nil, err
	}

	var out gatesResponse
	if err := resp.Decode(&out); err != nil {
		return nil, oops.With("operation", opListGates).Wrap(err)
	}
	if out.Gates == nil {
		return []Gate{}, nil
	}
	return out.Gates, nil
}

// OpenGate asks the service to open gate id. The response body is ignored.
func (s *Session) OpenGate(ctx context.Context, id int) error {
	_, err := s.call(ctx, opOpenGate, http.MethodPost, PathOpenGate+strconv.Itoa(id), nil)
	if err != nil {
		return oops.With("gate_id", id).Wrap(err)
	}
	return nil
}
