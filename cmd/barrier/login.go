// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package main

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/barrier-gate/barrier/internal/navigation"
	"github.com/barrier-gate/barrier/internal/session"
)

// EnvPassword supplies the login password when --password is not set.
const EnvPassword = "BARRIER_PASSWORD"

type loginConfig struct {
	username string
	password string
	force    bool
}

func newLoginCmd(deps *Deps) *cobra.Command {
	cfg := &loginConfig{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the gate-control service",
		Long: `Log in with a username and password and store the issued tokens.
The password is read from --password, then $` + EnvPassword + `, then a
prompt. On a terminal the prompt does not echo the password; otherwise one
line is read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, deps, cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.username, "username", "u", "", "login name")
	cmd.Flags().StringVar(&cfg.password, "password", "", "password (prefer $"+EnvPassword+")")
	cmd.Flags().BoolVar(&cfg.force, "force", false, "log in again even when a session is active")

	return cmd
}

func runLogin(cmd *cobra.Command, deps *Deps, cfg *loginConfig) error {
	a, err := newApp(cmd, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	state := a.reg.State()
	if d := a.guard.Decide(state, destLogin); d.Action == navigation.RedirectHome && !cfg.force {
		cmd.Printf("Already logged in (session %s). Use --force to log in again.\n", state.Session.ID())
		return nil
	}

	in := bufio.NewReader(cmd.InOrStdin())
	username := cfg.username
	if username == "" {
		cmd.Print("Username: ")
		if username, err = readLine(in); err != nil {
			return oops.Code("INPUT_FAILED").With("field", "username").Wrap(err)
		}
	}
	password := cfg.password
	if password == "" {
		password = os.Getenv(EnvPassword)
	}
	if password == "" {
		cmd.Print("Password: ")
		if password, err = readPassword(cmd, deps, in); err != nil {
			return oops.Code("INPUT_FAILED").With("field", "password").Wrap(err)
		}
	}

	state, err = a.reg.Login(cmd.Context(), username, password)
	switch {
	case err != nil && state.IsAuthenticated():
		return oops.With("username", username).Wrapf(err, "logged in but the session could not be saved")
	case err != nil && session.IsInvalidCredentials(err):
		return oops.With("username", username).Wrapf(err, "login failed")
	case err != nil:
		return oops.With("username", username).Wrapf(err, "login failed (%s)", state.Kind)
	}

	cmd.Printf("Logged in as %s\n", username)
	return nil
}

// readPassword reads without echo when stdin is a terminal and falls back
// to a plain line for piped input.
func readPassword(cmd *cobra.Command, deps *Deps, in *bufio.Reader) (string, error) {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !deps.IsTerminal(int(f.Fd())) {
		return readLine(in)
	}
	b, err := deps.ReadPassword(int(f.Fd()))
	cmd.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget stored tokens",
		Long: `Tell the service the session is over and clear the stored tokens.
The local tokens are cleared even when the service cannot be reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogout(cmd, deps)
		},
	}
}

func runLogout(cmd *cobra.Command, deps *Deps) error {
	a, err := newApp(cmd, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	wasAuthenticated := a.reg.State().IsAuthenticated()
	if err := a.reg.Logout(cmd.Context()); err != nil {
		return err
	}
	if wasAuthenticated {
		cmd.Println("Logged out")
	} else {
		cmd.Println("Not logged in")
	}
	return nil
}
