// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/barrier-gate/barrier/internal/config"
	"github.com/barrier-gate/barrier/internal/session"
)

// CodeInvalidGateID marks a gate id argument that is not a positive integer.
const CodeInvalidGateID = "GATE_ID_INVALID"

func newGatesCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gates",
		Short: "List or open gates",
	}
	cmd.AddCommand(newGatesListCmd(deps))
	cmd.AddCommand(newGatesOpenCmd(deps))
	return cmd
}

type gatesListConfig struct {
	jsonOutput bool
}

func newGatesListCmd(deps *Deps) *cobra.Command {
	cfg := &gatesListConfig{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the gates available to the session",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGatesList(cmd, deps, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output gates as JSON")

	return cmd
}

func runGatesList(cmd *cobra.Command, deps *Deps, cfg *gatesListConfig) error {
	a, err := newApp(cmd, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.requireSession(destGates)
	if err != nil {
		return err
	}
	gates, err := s.GetGates(cmd.Context())
	if err != nil {
		return explain(err)
	}

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(gates, "", "  ")
		if err != nil {
			return oops.Code("OUTPUT_FAILED").Wrapf(err, "failed to marshal gates")
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Print(formatGatesTable(gates))
	return nil
}

// formatGatesTable formats gates as a human-readable table.
func formatGatesTable(gates []session.Gate) string {
	if len(gates) == 0 {
		return "No gates available\n"
	}

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "--\t----\t-----------")
	for _, g := range gates {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", g.ID, g.Name, g.Description)
	}
	_ = w.Flush()
	return buf.String()
}

func newGatesOpenCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open GATE_ID",
		Short: "Open a gate",
		Long: `Open the gate with the given id. Network failures are retried
--retries times, --retry-delay apart; other failures are not retried.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGatesOpen(cmd, deps, args[0])
		},
	}

	def := config.Default()
	cmd.Flags().Uint64(config.FlagRetries, def.Gates.OpenRetries, "retries after a network failure")
	cmd.Flags().Duration(config.FlagRetryDelay, def.Gates.RetryDelay, "delay between retries")

	return cmd
}

func runGatesOpen(cmd *cobra.Command, deps *Deps, arg string) error {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return oops.Code(CodeInvalidGateID).With("gate_id", arg).Errorf("gate id must be a positive integer, got %q", arg)
	}

	a, err := newApp(cmd, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.requireSession(destGates)
	if err != nil {
		return err
	}

	if err := openWithRetry(cmd.Context(), s, id, a.cfg.Gates); err != nil {
		return explain(err)
	}
	cmd.Printf("Gate %d opened\n", id)
	return nil
}

// openWithRetry opens gate id, retrying only network failures.
func openWithRetry(ctx context.Context, s *session.Session, id int, cfg config.GatesConfig) error {
	backoff := retry.WithMaxRetries(cfg.OpenRetries, retry.NewConstant(cfg.RetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.OpenGate(ctx, id)
		if session.IsNetwork(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
