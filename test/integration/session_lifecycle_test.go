// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

//go:build integration

package integration

import (
	"context"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/barrier-gate/barrier/internal/credstore"
	"github.com/barrier-gate/barrier/internal/navigation"
	"github.com/barrier-gate/barrier/internal/registry"
	"github.com/barrier-gate/barrier/internal/session"
	"github.com/barrier-gate/barrier/internal/session/sessiontest"
)

var _ = Describe("Session lifecycle", func() {
	var (
		ctx    context.Context
		srv    *sessiontest.Server
		dbPath string
		guard  navigation.Guard
	)

	openRegistry := func() (*registry.Registry, credstore.Store) {
		store, err := credstore.OpenSQLite(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		reg, err := registry.New(registry.Config{
			Store:   store,
			Session: session.Config{BaseURL: srv.URL, HTTPClient: srv.Client()},
		})
		Expect(err).NotTo(HaveOccurred())
		return reg, store
	}

	BeforeEach(func() {
		ctx = context.Background()
		srv = sessiontest.NewServer()
		DeferCleanup(srv.Close)
		srv.AddUser("alice", "s3cret")
		dbPath = filepath.Join(GinkgoT().TempDir(), "credentials.db")
	})

	Describe("logging in", func() {
		It("moves the guard from the login page to home and persists tokens", func() {
			reg, store := openRegistry()
			Expect(guard.Decide(reg.State(), "gates").Action).To(Equal(navigation.RedirectLogin))

			var redirects []navigation.Decision
			stop := guard.Watch(reg, func(d navigation.Decision) { redirects = append(redirects, d) })
			defer stop()

			st, err := reg.Login(ctx, "alice", "s3cret")
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Kind).To(Equal(registry.Authenticated))
			Expect(redirects).To(ConsistOf(navigation.Decision{Action: navigation.RedirectHome, Destination: navigation.DefaultHome}))
			Expect(guard.Decide(reg.State(), navigation.DefaultLogin).Action).To(Equal(navigation.RedirectHome))

			creds, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(creds).NotTo(BeNil())
			Expect(srv.IsAccessValid(creds.AccessToken)).To(BeTrue())
		})

		It("reports bad credentials as a failed login and stores nothing", func() {
			reg, store := openRegistry()

			st, err := reg.Login(ctx, "alice", "nope")
			Expect(session.IsInvalidCredentials(err)).To(BeTrue())
			Expect(st.Kind).To(Equal(registry.LoginFailed))
			Expect(guard.Decide(st, "gates").Action).To(Equal(navigation.RedirectLogin))
			Expect(guard.Decide(st, navigation.DefaultLogin).Action).To(Equal(navigation.Allow))

			creds, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(creds).To(BeNil())
		})
	})

	Describe("restarting", func() {
		It("restores the stored session and keeps using it", func() {
			reg, _ := openRegistry()
			_, err := reg.Login(ctx, "alice", "s3cret")
			Expect(err).NotTo(HaveOccurred())

			restarted, _ := openRegistry()
			st, err := restarted.Restore(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.IsAuthenticated()).To(BeTrue())

			gates, err := st.Session.GetGates(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(gates).To(HaveLen(2))
			Expect(srv.LoginCalls()).To(Equal(1))
		})
	})

	Describe("token expiry", func() {
		It("refreshes once for concurrent requests and persists the new pair", func() {
			reg, store := openRegistry()
			_, err := reg.Login(ctx, "alice", "s3cret")
			Expect(err).NotTo(HaveOccurred())
			before, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())

			srv.ExpireAccessTokens()
			s, ok := reg.Session()
			Expect(ok).To(BeTrue())

			var wg sync.WaitGroup
			errs := make([]error, 8)
			for i := range errs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, errs[i] = s.GetGates(ctx)
				}()
			}
			wg.Wait()

			for _, err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(srv.RefreshCalls()).To(Equal(1))

			after, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(after.RefreshToken).NotTo(Equal(before.RefreshToken))
			Expect(srv.IsAccessValid(after.AccessToken)).To(BeTrue())
		})

		It("logs out and redirects to login when the refresh token is rejected", func() {
			reg, store := openRegistry()
			_, err := reg.Login(ctx, "alice", "s3cret")
			Expect(err).NotTo(HaveOccurred())

			var redirects []navigation.Decision
			stop := guard.Watch(reg, func(d navigation.Decision) { redirects = append(redirects, d) })
			defer stop()

			srv.ExpireAccessTokens()
			srv.RevokeRefreshTokens()
			s, _ := reg.Session()

			err = s.OpenGate(ctx, 1)
			Expect(session.IsSessionExpired(err)).To(BeTrue())
			Expect(srv.Opened()).To(BeEmpty())
			Expect(reg.State().Kind).To(Equal(registry.NoSession))
			Expect(redirects).To(ConsistOf(navigation.Decision{Action: navigation.RedirectLogin, Destination: navigation.DefaultLogin}))

			creds, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(creds).To(BeNil())
		})
	})

	Describe("logging out", func() {
		It("ends the session on the server and locally", func() {
			reg, store := openRegistry()
			_, err := reg.Login(ctx, "alice", "s3cret")
			Expect(err).NotTo(HaveOccurred())
			s, _ := reg.Session()
			old, _ := s.Credentials()

			Expect(reg.Logout(ctx)).To(Succeed())
			Expect(srv.LogoutCalls()).To(Equal(1))
			Expect(reg.State().Kind).To(Equal(registry.NoSession))

			creds, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(creds).To(BeNil())
			Expect(old.AccessToken).NotTo(BeEmpty())
		})
	})
})
