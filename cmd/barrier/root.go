// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/barrier-gate/barrier/internal/config"
	"github.com/barrier-gate/barrier/internal/credstore"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the barrier CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "barrier",
		Short: "Barrier - gate-control client",
		Long: `Barrier logs in to a gate-control service, keeps the session
alive across token expiry, and lists or opens the gates you can reach.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	addGlobalFlags(cmd.PersistentFlags())

	cmd.AddCommand(newLoginCmd(deps))
	cmd.AddCommand(newLogoutCmd(deps))
	cmd.AddCommand(newStatusCmd(deps))
	cmd.AddCommand(newGatesCmd(deps))
	cmd.AddCommand(newWatchCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps))

	return cmd
}

// addGlobalFlags registers the config overrides shared by every command.
// Only flags the user sets override the config file.
func addGlobalFlags(fs *pflag.FlagSet) {
	def := config.Default()
	fs.String(config.FlagServer, def.Server.URL, "gate-control service URL")
	fs.Duration(config.FlagTimeout, def.Server.Timeout, "per-request timeout")
	fs.String(config.FlagStore, def.Store.Backend,
		"credential store backend ("+strings.Join(credstore.Backends, ", ")+")")
	fs.String(config.FlagStorePath, def.Store.Path, "credential file or SQLite database path")
	fs.String(config.FlagStoreDSN, def.Store.DSN, "PostgreSQL connection string for the postgres store")
	fs.String(config.FlagProfile, def.Store.Profile, "credential profile name (postgres store)")
	fs.String(config.FlagLogFormat, def.Log.Format, "log format (text or json)")
	fs.String(config.FlagLogLevel, def.Log.Level, "log level (debug, info, warn, error)")
}
