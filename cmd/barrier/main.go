// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

// Package main is the entry point for the barrier gate-control client.
package main

import (
	"fmt"
	"os"

	"github.com/samber/oops"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := cmd.Execute(); err != nil {
		if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Hint() != "" {
			fmt.Fprintln(os.Stderr, "hint:", oopsErr.Hint())
		}
		os.Exit(1)
	}
}
