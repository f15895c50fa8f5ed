// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/barrier-gate/barrier/internal/credstore"
	"github.com/barrier-gate/barrier/internal/registry"
)

// StatusReport describes the local session.
type StatusReport struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Server    string `json:"server"`
	Store     string `json:"store"`
	Profile   string `json:"profile,omitempty"`
	// Verified is set only with --verify: whether the service accepted the session.
	Verified *bool  `json:"verified,omitempty"`
	Error    string `json:"error,omitempty"`
}

type statusConfig struct {
	jsonOutput bool
	verify     bool
}

func newStatusCmd(deps *Deps) *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Long: `Show whether a session is stored and where it lives. With --verify the
session is checked against the service, refreshing it if needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, deps, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().BoolVar(&cfg.verify, "verify", false, "check the session against the service")

	return cmd
}

func runStatus(cmd *cobra.Command, deps *Deps, cfg *statusConfig) error {
	a, err := newApp(cmd, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	if !cfg.verify {
		return printStatus(cmd, buildStatusReport(a), cfg.jsonOutput)
	}

	verified := false
	var verifyErr error
	if s, err := a.requireSession(destHome); err == nil {
		_, verifyErr = s.GetGates(cmd.Context())
		verified = verifyErr == nil
	}
	// Built after the check: an expired session has already been dropped.
	report := buildStatusReport(a)
	report.Verified = &verified
	if verifyErr != nil {
		report.Error = verifyErr.Error()
	}
	return printStatus(cmd, report, cfg.jsonOutput)
}

func buildStatusReport(a *app) StatusReport {
	state := a.reg.State()
	backend := a.cfg.Store.Backend
	if backend == "" {
		backend = credstore.BackendFile
	}
	report := StatusReport{
		State:  state.Kind.String(),
		Server: a.cfg.Server.URL,
		Store:  backend,
	}
	if backend == credstore.BackendPostgres {
		report.Profile = a.cfg.Store.Profile
	}
	if state.Kind == registry.Authenticated && state.Session != nil {
		report.SessionID = state.Session.ID().String()
	}
	return report
}

func printStatus(cmd *cobra.Command, report StatusReport, jsonOutput bool) error {
	if jsonOutput {
		output, err := formatStatusJSON(report)
		if err != nil {
			return err
		}
		cmd.Println(output)
		return nil
	}
	cmd.Print(formatStatusTable(report))
	return nil
}

// formatStatusTable formats the report as aligned key/value rows.
func formatStatusTable(report StatusReport) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	row := func(key, value string) {
		if value == "" {
			value = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", key, value)
	}
	row("STATE", report.State)
	row("SESSION", report.SessionID)
	row("SERVER", report.Server)
	row("STORE", report.Store)
	if report.Profile != "" {
		row("PROFILE", report.Profile)
	}
	if report.Verified != nil {
		row("VERIFIED", fmt.Sprintf("%t", *report.Verified))
	}
	if report.Error != "" {
		row("ERROR", report.Error)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the report as JSON.
func formatStatusJSON(report StatusReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", oops.Code("OUTPUT_FAILED").Wrapf(err, "failed to marshal status")
	}
	return string(data), nil
}
