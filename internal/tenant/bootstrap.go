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

package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atelierhq/atelier/internal/id"
	"github.com/atelierhq/atelier/internal/observability/logger"
	"github.com/atelierhq/atelier/internal/observability/metrics"
	"github.com/atelierhq/atelier/internal/observability/tracing"
	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/scope"
)

// BootstrapService provisions a new tenant's workspace. Every step writes
// through a scope built for the tenant, so rows are stamped with its id even
// though no session exists for it yet.
type BootstrapService struct {
	provisioner Provisioner
	metrics     *metrics.Recorder
	now         func() time.Time
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(p Provisioner, m *metrics.Recorder) *BootstrapService {
	return &BootstrapService{provisioner: p, metrics: m, now: time.Now}
}

// InitializeNewTenant creates settings, master data and the trial
// subscription in one transaction. On error nothing is written; the tenant
// row itself is left for the caller, who retries bootstrap.
func (b *BootstrapService) InitializeNewTenant(ctx context.Context, t *Tenant) (err error) {
	ctx, span := tracing.Start(ctx, "tenant", "bootstrap", tracing.TenantID(t.ID))
	defer func() { tracing.End(span, err) }()

	s := scope.ForTenant(t.ID)
	now := b.now()

	err = b.provisioner.InTx(ctx, func(ctx context.Context, tx ProvisionTx) error {
		if err := b.CreateDefaultSettings(ctx, tx, s, now); err != nil {
			return fmt.Errorf("default settings: %w", err)
		}
		if err := b.SeedMasterData(ctx, tx, s, now); err != nil {
			return fmt.Errorf("master data: %w", err)
		}
		if err := b.CreateDefaultSubscription(ctx, tx, s, now); err != nil {
			return fmt.Errorf("default subscription: %w", err)
		}
		return nil
	})
	b.metrics.TenantBootstrapped(ctx, err == nil)
	if err != nil {
		slog.ErrorContext(ctx, "tenant bootstrap failed", logger.Component("bootstrap"), logger.TenantID(t.ID), logger.Error(err))
		return err
	}
	slog.InfoContext(ctx, "tenant bootstrapped", logger.Component("bootstrap"), logger.TenantID(t.ID))
	return nil
}

// CreateDefaultSettings upserts the default settings row.
func (b *BootstrapService) CreateDefaultSettings(ctx context.Context, tx ProvisionTx, s scope.Scope, now time.Time) error {
	st := DefaultSetting()
	st.UpdatedAt = now
	return tx.UpsertSettings(ctx, s, st)
}

// SeedMasterData copies the system catalogs, the workflow and the document
// sequences into the tenant. Sequences start at 0 in the fiscal year of now.
func (b *BootstrapService) SeedMasterData(ctx context.Context, tx ProvisionTx, s scope.Scope, now time.Time) error {
	var master []*records.MasterRecord
	for _, category := range records.Categories() {
		for i, name := range records.DefaultCatalog[category] {
			master = append(master, &records.MasterRecord{
				ID:        id.NewUUIDv7(),
				Category:  category,
				Name:      name,
				SortOrder: i + 1,
				IsActive:  true,
				CreatedAt: now,
			})
		}
	}
	if err := tx.InsertMasterRecords(ctx, s, master); err != nil {
		return err
	}

	stages := make([]*records.WorkflowStage, len(records.DefaultWorkflow))
	for i, d := range records.DefaultWorkflow {
		stages[i] = &records.WorkflowStage{
			ID:       id.NewUUIDv7(),
			Name:     d.Name,
			Position: i + 1,
			Color:    d.Color,
			IsFinal:  d.IsFinal,
			IsActive: true,
		}
	}
	if err := tx.InsertWorkflowStages(ctx, s, stages); err != nil {
		return err
	}

	fy := records.FiscalYear(now)
	seqs := make([]*records.NumberSequence, len(records.DefaultSequences))
	for i, d := range records.DefaultSequences {
		seqs[i] = &records.NumberSequence{
			ID:           id.NewUUIDv7(),
			DocumentType: d.DocumentType,
			Prefix:       d.Prefix,
			Current:      0,
			Padding:      records.SequencePadding,
			FiscalYear:   fy,
			ResetYearly:  true,
			UpdatedAt:    now,
		}
	}
	return tx.InsertSequences(ctx, s, seqs)
}

// CreateDefaultSubscription starts a trial on the starter plan, or the free
// plan when starter is missing. It does nothing if a subscription exists.
func (b *BootstrapService) CreateDefaultSubscription(ctx context.Context, tx ProvisionTx, s scope.Scope, now time.Time) error {
	_, err := tx.GetSubscription(ctx, s)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		return err
	}

	plan, err := tx.GetPlanBySlug(ctx, PlanStarter)
	if errors.Is(err, ErrPlanNotFound) {
		plan, err = tx.GetPlanBySlug(ctx, PlanFree)
	}
	if err != nil {
		return err
	}

	start := now
	end := now.Add(plan.TrialLength())
	trialEnd := end
	return tx.CreateSubscription(ctx, s, &Subscription{
		ID:                 id.NewUUIDv7(),
		PlanID:             plan.ID,
		Status:             SubscriptionTrialing,
		BillingCycle:       plan.BillingCycle,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		TrialEndsAt:        &trialEnd,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
}
