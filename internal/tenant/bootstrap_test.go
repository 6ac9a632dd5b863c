package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/internal/records"
)

func intPtr(v int) *int { return &v }

func starterPlan() *Plan {
	return &Plan{ID: "plan-starter", Slug: PlanStarter, Name: "Starter", Price: decimal.NewFromInt(999), BillingCycle: "monthly", TrialDays: intPtr(30)}
}

func freePlan() *Plan {
	return &Plan{ID: "plan-free", Slug: PlanFree, Name: "Free", BillingCycle: "monthly"}
}

func newBootstrap(p Provisioner, at time.Time) *BootstrapService {
	b := NewBootstrapService(p, nil)
	b.now = func() time.Time { return at }
	return b
}

// TestPurpose: Validates that bootstrap provisions settings, every master category, workflow, seven sequences and a trial subscription.
// Scope: Unit Test
// Expected: One settings row, one trialing subscription sized by the plan trial, sequences at 0 in the current fiscal year.
// Test Case ID: BOOT-01
func TestBootstrap_InitializeNewTenant(t *testing.T) {
	at := time.Date(2025, time.March, 20, 12, 0, 0, 0, time.UTC)
	p := newMemProvisioner(starterPlan(), freePlan())
	b := newBootstrap(p, at)

	require.NoError(t, b.InitializeNewTenant(context.Background(), &Tenant{ID: "T1"}))

	st := p.committed.settings["T1"]
	require.NotNil(t, st)
	assert.Equal(t, "T1", st.TenantID)
	assert.Equal(t, "INR", st.Currency)
	assert.Equal(t, 4, st.FiscalYearStart)

	master := p.masterFor("T1")
	for _, c := range records.Categories() {
		n := 0
		for _, m := range master {
			if m.Category == c {
				n++
				assert.True(t, m.IsActive)
			}
		}
		assert.NotZero(t, n, "category %s seeded", c)
	}
	assert.Len(t, p.committed.stages, len(records.DefaultWorkflow))

	require.Len(t, p.committed.seqs, 7)
	prefixes := map[string]bool{}
	for _, s := range p.committed.seqs {
		assert.Equal(t, "T1", s.TenantID)
		assert.Zero(t, s.Current)
		assert.Equal(t, "2024-25", s.FiscalYear)
		assert.Equal(t, records.SequencePadding, s.Padding)
		assert.True(t, s.ResetYearly)
		prefixes[s.Prefix] = true
	}
	assert.Len(t, prefixes, 7, "prefixes are distinct")

	sub := p.committed.subs["T1"]
	require.NotNil(t, sub)
	assert.Equal(t, SubscriptionTrialing, sub.Status)
	assert.Equal(t, "plan-starter", sub.PlanID)
	assert.Equal(t, at, *sub.CurrentPeriodStart)
	assert.Equal(t, at.Add(30*24*time.Hour), *sub.CurrentPeriodEnd)
	assert.Equal(t, *sub.CurrentPeriodEnd, *sub.TrialEndsAt)
}

// TestPurpose: Validates the free plan fallback and the default 14 day trial.
// Scope: Unit Test
// Expected: Without a starter plan the free plan is used with a 14 day trial; without either bootstrap fails.
// Test Case ID: BOOT-02
func TestBootstrap_PlanFallback(t *testing.T) {
	at := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)

	p := newMemProvisioner(freePlan())
	require.NoError(t, newBootstrap(p, at).InitializeNewTenant(context.Background(), &Tenant{ID: "T1"}))
	sub := p.committed.subs["T1"]
	require.NotNil(t, sub)
	assert.Equal(t, "plan-free", sub.PlanID)
	assert.Equal(t, at.Add(14*24*time.Hour), *sub.TrialEndsAt)

	none := newMemProvisioner()
	err := newBootstrap(none, at).InitializeNewTenant(context.Background(), &Tenant{ID: "T2"})
	assert.ErrorIs(t, err, ErrPlanNotFound)
	assert.Empty(t, none.committed.settings, "failed bootstrap leaves no settings behind")
	assert.Empty(t, none.committed.master)
}

// TestPurpose: Validates that a failure at any step rolls back every step.
// Scope: Unit Test
// Expected: No settings, master data, sequences or subscription exist after a failed bootstrap.
// Test Case ID: BOOT-03
func TestBootstrap_AllOrNothing(t *testing.T) {
	for _, step := range []string{"settings", "master", "stages", "sequences", "subscription"} {
		t.Run(step, func(t *testing.T) {
			p := newMemProvisioner(starterPlan())
			p.failOn = step
			err := newBootstrap(p, time.Now()).InitializeNewTenant(context.Background(), &Tenant{ID: "T1"})
			require.ErrorIs(t, err, errInjected)

			assert.Empty(t, p.committed.settings)
			assert.Empty(t, p.committed.master)
			assert.Empty(t, p.committed.stages)
			assert.Empty(t, p.committed.seqs)
			assert.Empty(t, p.committed.subs)
		})
	}
}

// TestPurpose: Validates bootstrap can be retried without duplicating data or replacing the subscription.
// Scope: Unit Test
// Expected: Second run keeps one subscription (the original) and the same number of master rows.
// Test Case ID: BOOT-04
func TestBootstrap_Idempotent(t *testing.T) {
	p := newMemProvisioner(starterPlan())
	b := newBootstrap(p, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, b.InitializeNewTenant(ctx, &Tenant{ID: "T1"}))
	firstSub := p.committed.subs["T1"]
	masterCount := len(p.committed.master)

	b.now = func() time.Time { return time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, b.InitializeNewTenant(ctx, &Tenant{ID: "T1"}))

	assert.Same(t, firstSub, p.committed.subs["T1"])
	assert.Len(t, p.committed.subs, 1)
	assert.Len(t, p.committed.master, masterCount)
	assert.Len(t, p.committed.seqs, 7)
}

// TestPurpose: Validates that two tenants bootstrapped side by side each get their own rows.
// Scope: Unit Test
// Security: Multi-tenant boundary enforcement
// Expected: Master rows are partitioned by tenant.
// Test Case ID: BOOT-05
func TestBootstrap_TenantsPartitioned(t *testing.T) {
	p := newMemProvisioner(starterPlan())
	b := newBootstrap(p, time.Now())
	ctx := context.Background()

	require.NoError(t, b.InitializeNewTenant(ctx, &Tenant{ID: "A"}))
	require.NoError(t, b.InitializeNewTenant(ctx, &Tenant{ID: "B"}))

	a := p.masterFor("A")
	bb := p.masterFor("B")
	assert.Equal(t, len(a), len(bb))
	assert.Equal(t, len(p.committed.master), len(a)+len(bb))
	assert.Len(t, p.committed.subs, 2)
}
