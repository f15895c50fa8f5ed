// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

//go:build integration

package cli_test

import (
	"context"
	"os/exec"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/barrier-gate/barrier/internal/session/sessiontest"
)

var _ = Describe("Postgres credential store", func() {
	var (
		ctx context.Context
		srv *sessiontest.Server
	)

	barrier := func(args ...string) (string, error) {
		all := append([]string{"run", ".", "--log-level", "error"}, args...)
		cmd := exec.CommandContext(ctx, "go", all...)
		cmd.Dir = "../../../cmd/barrier"
		cmd.Env = append(cmd.Environ(),
			"XDG_CONFIG_HOME="+GinkgoT().TempDir(),
			"BARRIER_PASSWORD=s3cret",
		)
		out, err := cmd.CombinedOutput()
		return string(out), err
	}

	storeFlags := func(profile string) []string {
		return []string{
			"--server", srv.URL,
			"--store", "postgres",
			"--store-dsn", env.connStr,
			"--profile", profile,
		}
	}

	countRows := func(profile string) int {
		var n int
		err := env.pool.QueryRow(ctx,
			"SELECT count(*) FROM barrier_credentials WHERE profile = $1", profile,
		).Scan(&n)
		Expect(err).NotTo(HaveOccurred())
		return n
	}

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)
		srv = sessiontest.NewServer()
		DeferCleanup(srv.Close)
		srv.AddUser("alice", "s3cret")
	})

	It("reports the missing schema with a migrate hint", func() {
		out, err := barrier(append([]string{"status"}, storeFlags("default")...)...)
		Expect(err).To(HaveOccurred())
		Expect(out).To(ContainSubstring("barrier migrate"))
	})

	It("migrates, then stores a login per profile", func() {
		out, err := barrier("migrate", "--store-dsn", env.connStr)
		Expect(err).NotTo(HaveOccurred(), "migrate failed: %s", out)
		Expect(out).To(ContainSubstring("Migrations completed successfully"))

		out, err = barrier("migrate", "status", "--store-dsn", env.connStr)
		Expect(err).NotTo(HaveOccurred(), "migrate status failed: %s", out)
		Expect(out).To(ContainSubstring("No pending migrations"))

		out, err = barrier(append([]string{"login", "-u", "alice"}, storeFlags("ops")...)...)
		Expect(err).NotTo(HaveOccurred(), "login failed: %s", out)
		Expect(countRows("ops")).To(Equal(2))
		Expect(countRows("default")).To(Equal(0))

		out, err = barrier(append([]string{"gates", "open", "1"}, storeFlags("ops")...)...)
		Expect(err).NotTo(HaveOccurred(), "gates open failed: %s", out)
		Expect(srv.Opened()).To(Equal([]int{1}))

		out, err = barrier(append([]string{"logout"}, storeFlags("ops")...)...)
		Expect(err).NotTo(HaveOccurred(), "logout failed: %s", out)
		Expect(countRows("ops")).To(Equal(0))
	})

	It("persists refreshed tokens across invocations", func() {
		_, err := barrier("migrate", "--store-dsn", env.connStr)
		Expect(err).NotTo(HaveOccurred())
		_, err = barrier(append([]string{"login", "-u", "alice"}, storeFlags("default")...)...)
		Expect(err).NotTo(HaveOccurred())

		srv.ExpireAccessTokens()
		out, err := barrier(append([]string{"gates", "list"}, storeFlags("default")...)...)
		Expect(err).NotTo(HaveOccurred(), "gates list failed: %s", out)
		Expect(srv.RefreshCalls()).To(Equal(1))

		out, err = barrier(append([]string{"gates", "list"}, storeFlags("default")...)...)
		Expect(err).NotTo(HaveOccurred(), "second gates list failed: %s", out)
		Expect(srv.RefreshCalls()).To(Equal(1))
	})
})
