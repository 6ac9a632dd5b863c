// Copyright 2026 The Atelier Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build integration
// +build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/id"
	"github.com/atelierhq/atelier/internal/otp"
	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/scope"
	"github.com/atelierhq/atelier/internal/tenant"
)

// startPostgres runs a throwaway PostgreSQL and applies the migrations.
func startPostgres(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "atelier",
				"POSTGRES_PASSWORD": "atelier",
				"POSTGRES_DB":       "atelier",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Skipping integration test: cannot start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := Open(ctx, fmt.Sprintf("postgres://atelier:atelier@%s:%s/atelier?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.MigrateUp(ctx))
	return db
}

func createTenant(t *testing.T, db *DB, subdomain string) *tenant.Tenant {
	t.Helper()
	now := time.Now().UTC()
	tn := &tenant.Tenant{
		ID: id.NewUUIDv7(), Subdomain: subdomain, Name: subdomain, Status: tenant.StatusTrial,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, NewTenantRepository(db).Create(context.Background(), tn))
	return tn
}

// TestPurpose: Validates that the scoped customer table isolates tenants.
// Scope: Database Integration Test
// Security: Multi-tenant Data Separation (CWE-284)
// Expected: A member of A sees only A's rows, cannot fetch B's row by id, and creates rows owned by A.
// Test Case ID: ISO-01
// Metadata:
//   - Category: Tenant
//   - Priority: High
//   - Tags: multi-tenancy, security, data-isolation
func TestScopedTable_TenantIsolation(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	a := createTenant(t, db, "tenant-a")
	b := createTenant(t, db, "tenant-b")
	store := NewCustomerStore(db)

	ctxA := scope.WithPrincipal(ctx, scope.Principal{UserID: "ua", TenantID: a.ID})
	sa := scope.FromContext(ctxA)
	sb := scope.ForTenant(b.ID)

	custA := &records.Customer{ID: id.NewUUIDv7(), Code: "CUS/1", Name: "Ravi", CreatedAt: time.Now()}
	require.NoError(t, store.Create(ctx, sa, custA))
	assert.Equal(t, a.ID, custA.TenantID, "tenant stamped from the principal")

	custB := &records.Customer{ID: id.NewUUIDv7(), Code: "CUS/1", Name: "Meena", CreatedAt: time.Now()}
	require.NoError(t, store.Create(ctx, sb, custB))

	list, err := store.List(ctx, sa, 50, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, custA.ID, list[0].ID)

	_, err = store.Get(ctx, sa, custB.ID)
	assert.ErrorIs(t, err, records.ErrNotFound)

	forged := &records.Customer{Owned: scope.Owned{TenantID: b.ID}, ID: id.NewUUIDv7(), Code: "X", Name: "x"}
	assert.ErrorIs(t, store.Create(ctx, sa, forged), scope.ErrCrossTenantWrite)

	n, err := store.Count(ctx, scope.Unscoped(ctx, "test"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// TestPurpose: Validates transactional bootstrap against the real schema.
// Scope: Database Integration Test
// Expected: Settings, nine categories, seven sequences and a 14 day starter trial; rerun is a no-op.
// Test Case ID: BOOT-DB-01
func TestProvisioner_Bootstrap(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	tn := createTenant(t, db, "acme")

	b := tenant.NewBootstrapService(NewProvisioner(db), nil)
	require.NoError(t, b.InitializeNewTenant(ctx, tn))
	require.NoError(t, b.InitializeNewTenant(ctx, tn), "bootstrap is idempotent")

	s := scope.ForTenant(tn.ID)
	st, err := NewSettingsRepository(db).Get(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "INR", st.Currency)

	catalog := NewCatalogRepository(db)
	for _, c := range records.Categories() {
		rows, err := catalog.ListCategory(ctx, s, c)
		require.NoError(t, err)
		assert.NotEmpty(t, rows, c)
	}
	seqs, err := catalog.List(ctx, s)
	require.NoError(t, err)
	assert.Len(t, seqs, len(records.DefaultSequences))

	sub, err := NewSubscriptionRepository(db).Get(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, tenant.SubscriptionTrialing, sub.Status)
	assert.WithinDuration(t, sub.CurrentPeriodStart.Add(14*24*time.Hour), *sub.TrialEndsAt, time.Second)

	plan, err := NewPlanRepository(db).GetByID(ctx, sub.PlanID)
	require.NoError(t, err)
	assert.Equal(t, tenant.PlanStarter, plan.Slug)
	assert.True(t, plan.Price.Equal(decimal.NewFromInt(999)))

	num, err := catalog.Next(ctx, s, records.DocOrder, time.Now())
	require.NoError(t, err)
	assert.Contains(t, num, "/00001")
}

// TestPurpose: Validates the slot lock under concurrent issuance.
// Scope: Database Integration Test
// Expected: Twenty concurrent Generate calls leave exactly one pending code.
// Test Case ID: OTP-DB-01
func TestOTPRepository_ConcurrentGenerate(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	tn := createTenant(t, db, "otp-co")
	repo := NewOTPRepository(db)
	svc := otp.NewService(repo, nil, nil, audit.Nop{}, otp.Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Generate(ctx, tn.ID, nil, otp.PurposeLogin)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var pending int
	require.NoError(t, db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM otps WHERE tenant_id = $1 AND purpose = $2 AND verified_at IS NULL`,
		tn.ID, otp.PurposeLogin).Scan(&pending))
	assert.Equal(t, 1, pending)

	rec, err := repo.FindActive(ctx, scope.ForTenant(tn.ID), otp.PurposeLogin)
	require.NoError(t, err)
	res, _, err := svc.Verify(ctx, tn.ID, otp.PurposeLogin, rec.Code)
	require.NoError(t, err)
	assert.Equal(t, otp.ResultOK, res)
	res, _, err = svc.Verify(ctx, tn.ID, otp.PurposeLogin, rec.Code)
	require.NoError(t, err)
	assert.Equal(t, otp.ResultNotFound, res)
}
