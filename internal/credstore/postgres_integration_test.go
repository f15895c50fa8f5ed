// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

//go:build integration

package credstore_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/barrier-gate/barrier/internal/credstore"
	"github.com/barrier-gate/barrier/internal/session"
	"github.com/barrier-gate/barrier/pkg/errutil"
)

var _ = Describe("Postgres credential store", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		dsn       string
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("barrier"),
			postgres.WithUsername("barrier"),
			postgres.WithPassword("barrier"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2)),
		)
		Expect(err).NotTo(HaveOccurred())

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	It("reports a missing schema before migrate", func() {
		store, err := credstore.OpenPostgres(ctx, dsn, "")
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = store.Close() }()

		_, err = store.Load(ctx)
		Expect(errutil.HasCode(err, credstore.CodeSchemaMissing)).To(BeTrue(), "got %v", err)
	})

	It("applies every migration", func() {
		migrator, err := credstore.NewMigrator(dsn)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = migrator.Close() }()

		Expect(migrator.Up()).To(Succeed())
		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeNumerically(">", 0))
		Expect(dirty).To(BeFalse())
	})

	It("round-trips credentials per profile", func() {
		home, err := credstore.OpenPostgres(ctx, dsn, "home")
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = home.Close() }()
		office, err := credstore.OpenPostgres(ctx, dsn, "office")
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = office.Close() }()

		Expect(home.Save(ctx, session.Credentials{AccessToken: "a1", RefreshToken: "r1"})).To(Succeed())
		Expect(home.Save(ctx, session.Credentials{AccessToken: "a2", RefreshToken: "r2"})).To(Succeed())

		got, err := home.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(&session.Credentials{AccessToken: "a2", RefreshToken: "r2"}))

		other, err := office.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(other).To(BeNil())

		Expect(home.Clear(ctx)).To(Succeed())
		got, err = home.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeNil())
	})

	It("opens through the factory", func() {
		store, err := credstore.Open(ctx, credstore.Config{Backend: credstore.BackendPostgres, DSN: dsn})
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = store.Close() }()
		Expect(store).To(BeAssignableToTypeOf(&credstore.Postgres{}))
	})
})
