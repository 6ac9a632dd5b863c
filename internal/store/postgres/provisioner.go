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

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/scope"
	"github.com/atelierhq/atelier/internal/tenant"
)

// Provisioner implements tenant.Provisioner on one pgx transaction. Seed
// inserts use ON CONFLICT DO NOTHING so a retried bootstrap fills only what
// is missing.
type Provisioner struct {
	db *DB
}

func NewProvisioner(db *DB) *Provisioner {
	return &Provisioner{db: db}
}

func (p *Provisioner) InTx(ctx context.Context, fn func(context.Context, tenant.ProvisionTx) error) error {
	return p.db.inTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &provisionTx{tx: tx})
	})
}

type provisionTx struct {
	tx pgx.Tx
}

func stampAll[T scope.Record](s scope.Scope, recs []T) error {
	for _, r := range recs {
		if err := s.Stamp(r); err != nil {
			return err
		}
	}
	return nil
}

func (t *provisionTx) UpsertSettings(ctx context.Context, s scope.Scope, st *tenant.Setting) error {
	if err := s.Stamp(st); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO tenant_settings (`+settingsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO UPDATE
		SET currency = EXCLUDED.currency,
		    timezone = EXCLUDED.timezone,
		    measurement_unit = EXCLUDED.measurement_unit,
		    fiscal_year_start_month = EXCLUDED.fiscal_year_start_month,
		    updated_at = EXCLUDED.updated_at
	`, st.TenantID, st.Currency, st.Timezone, st.MeasurementUnit, st.FiscalYearStart, st.Modules, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}

func (t *provisionTx) InsertMasterRecords(ctx context.Context, s scope.Scope, recs []*records.MasterRecord) error {
	if err := stampAll(s, recs); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, m := range recs {
		batch.Queue(`
			INSERT INTO master_records (tenant_id, id, category, name, sort_order, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (tenant_id, category, name) DO NOTHING
		`, m.TenantID, m.ID, m.Category, m.Name, m.SortOrder, m.IsActive, m.CreatedAt)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to seed master records: %w", err)
	}
	return nil
}

func (t *provisionTx) InsertWorkflowStages(ctx context.Context, s scope.Scope, stages []*records.WorkflowStage) error {
	if err := stampAll(s, stages); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, w := range stages {
		batch.Queue(`
			INSERT INTO workflow_stages (tenant_id, id, name, position, color, is_final, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (tenant_id, name) DO NOTHING
		`, w.TenantID, w.ID, w.Name, w.Position, w.Color, w.IsFinal, w.IsActive)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to seed workflow stages: %w", err)
	}
	return nil
}

func (t *provisionTx) InsertSequences(ctx context.Context, s scope.Scope, seqs []*records.NumberSequence) error {
	if err := stampAll(s, seqs); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, q := range seqs {
		batch.Queue(`
			INSERT INTO number_sequences (`+sequenceColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (tenant_id, document_type) DO NOTHING
		`, q.TenantID, q.ID, q.DocumentType, q.Prefix, q.Current, q.Padding, q.FiscalYear, q.ResetYearly, q.UpdatedAt)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to seed sequences: %w", err)
	}
	return nil
}

func (t *provisionTx) GetSubscription(ctx context.Context, s scope.Scope) (*tenant.Subscription, error) {
	return getSubscription(ctx, t.tx, s)
}

func (t *provisionTx) GetPlanBySlug(ctx context.Context, slug string) (*tenant.Plan, error) {
	return getPlan(ctx, t.tx, "slug", slug)
}

func (t *provisionTx) CreateSubscription(ctx context.Context, s scope.Scope, sub *tenant.Subscription) error {
	if err := s.Stamp(sub); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO tenant_subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, sub.TenantID, sub.ID, sub.PlanID, sub.Status, sub.BillingCycle,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.TrialEndsAt, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}
