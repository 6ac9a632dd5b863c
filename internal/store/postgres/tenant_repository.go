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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier/internal/scope"
	"github.com/atelierhq/atelier/internal/tenant"
)

// TenantRepository implements tenant.Repository. Tenants are the root of
// ownership and are not themselves scoped.
type TenantRepository struct {
	db *DB
}

func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = "id, subdomain, name, email, status, onboarding_completed, created_at, updated_at"

func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Subdomain, t.Name, t.Email, t.Status, t.OnboardingCompleted, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err, "tenants_subdomain_key") {
		return tenant.ErrSubdomainTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

func (r *TenantRepository) getBy(ctx context.Context, column string, value any) (*tenant.Tenant, error) {
	rows, err := r.db.pool.Query(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE "+column+" = $1", value)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[tenant.Tenant])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenant.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, tenant.ErrTenantNotFound
	}
	return r.getBy(ctx, "id", id)
}

func (r *TenantRepository) GetBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	return r.getBy(ctx, "subdomain", subdomain)
}

func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE tenants
		SET name = $2, email = $3, status = $4, onboarding_completed = $5, updated_at = $6
		WHERE id = $1
	`, t.ID, t.Name, t.Email, t.Status, t.OnboardingCompleted, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

func (r *TenantRepository) UpdateStatus(ctx context.Context, id, status string, at time.Time) error {
	tag, err := r.db.pool.Exec(ctx, `UPDATE tenants SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	rows, err := r.db.pool.Query(ctx,
		"SELECT "+tenantColumns+" FROM tenants ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[tenant.Tenant])
}

func (r *TenantRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.pool.Query(ctx, "SELECT status, COUNT(*) FROM tenants GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count tenants: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// SettingsRepository implements tenant.SettingsRepository.
type SettingsRepository struct {
	db *DB
}

func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

const settingsColumns = "tenant_id, currency, timezone, measurement_unit, fiscal_year_start_month, modules, updated_at"

func (r *SettingsRepository) Get(ctx context.Context, s scope.Scope) (*tenant.Setting, error) {
	if s.IsUnfiltered() {
		return nil, scope.ErrNoTenant
	}
	cond, args, _ := where(s)
	rows, err := r.db.pool.Query(ctx, "SELECT "+settingsColumns+" FROM tenant_settings"+cond, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	st, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[tenant.Setting])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenant.ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return st, nil
}

func (r *SettingsRepository) Update(ctx context.Context, s scope.Scope, st *tenant.Setting) error {
	if err := s.Stamp(st); err != nil {
		return err
	}
	cond, args, n := where(s)
	tag, err := r.db.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE tenant_settings
		SET currency = $%d, timezone = $%d, measurement_unit = $%d,
		    fiscal_year_start_month = $%d, modules = $%d, updated_at = $%d
		%s AND tenant_id = $%d`, n, n+1, n+2, n+3, n+4, n+5, cond, n+6),
		append(args, st.Currency, st.Timezone, st.MeasurementUnit, st.FiscalYearStart, st.Modules, st.UpdatedAt, st.TenantID)...)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrSettingsNotFound
	}
	return nil
}

// SubscriptionRepository implements tenant.SubscriptionRepository.
type SubscriptionRepository struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = "tenant_id, id, plan_id, status, billing_cycle, current_period_start, current_period_end, trial_ends_at, created_at, updated_at"

func getSubscription(ctx context.Context, q querier, s scope.Scope) (*tenant.Subscription, error) {
	if s.IsUnfiltered() {
		return nil, scope.ErrNoTenant
	}
	cond, args, _ := where(s)
	rows, err := q.Query(ctx, "SELECT "+subscriptionColumns+" FROM tenant_subscriptions"+cond, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	sub, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[tenant.Subscription])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenant.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepository) Get(ctx context.Context, s scope.Scope) (*tenant.Subscription, error) {
	return getSubscription(ctx, r.db.pool, s)
}

// ExpireLapsed runs across every tenant; it is only called by maintenance.
func (r *SubscriptionRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE tenant_subscriptions
		SET status = $1, updated_at = $2
		WHERE status = $3 AND current_period_end IS NOT NULL AND current_period_end < $2
	`, tenant.SubscriptionExpired, now, tenant.SubscriptionActive)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PlanRepository implements tenant.PlanRepository.
type PlanRepository struct {
	db *DB
}

func NewPlanRepository(db *DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = "id, slug, name, price, billing_cycle, trial_days, max_users, max_orders, max_customers, max_workers, is_active"

func getPlan(ctx context.Context, q querier, column string, value any) (*tenant.Plan, error) {
	rows, err := q.Query(ctx, "SELECT "+planColumns+" FROM plans WHERE "+column+" = $1 AND is_active", value)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[tenant.Plan])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenant.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p, nil
}

func (r *PlanRepository) GetByID(ctx context.Context, id string) (*tenant.Plan, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, tenant.ErrPlanNotFound
	}
	return getPlan(ctx, r.db.pool, "id", id)
}

func (r *PlanRepository) GetBySlug(ctx context.Context, slug string) (*tenant.Plan, error) {
	return getPlan(ctx, r.db.pool, "slug", slug)
}

// UsageRepository implements tenant.UsageReader.
type UsageRepository struct {
	db *DB
}

func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Usage(ctx context.Context, s scope.Scope) (tenant.Usage, error) {
	cond, args, _ := where(s)
	var u tenant.Usage
	err := r.db.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users`+cond+`),
			(SELECT COUNT(*) FROM orders`+cond+`),
			(SELECT COUNT(*) FROM customers`+cond+`),
			(SELECT COUNT(*) FROM workers`+cond+`)
	`, args...).Scan(&u.Users, &u.Orders, &u.Customers, &u.Workers)
	if err != nil {
		return tenant.Usage{}, fmt.Errorf("failed to read usage: %w", err)
	}
	return u, nil
}
