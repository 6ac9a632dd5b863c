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
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelierhq/atelier/internal/scope"
)

// Tenant statuses
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusTrial     = "trial"
	StatusExpired   = "expired"
)

// ValidStatus reports whether s is a tenant status.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusSuspended, StatusTrial, StatusExpired:
		return true
	}
	return false
}

// Tenant is a business workspace. Tenants are deactivated, never deleted.
type Tenant struct {
	ID                  string    `json:"id" db:"id"`
	Subdomain           string    `json:"subdomain" db:"subdomain"`
	Name                string    `json:"name" db:"name"`
	Email               string    `json:"email" db:"email"`
	Status              string    `json:"status" db:"status"`
	OnboardingCompleted bool      `json:"onboarding_completed" db:"onboarding_completed"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// Setting is the one-per-tenant workspace configuration.
type Setting struct {
	scope.Owned
	Currency        string          `json:"currency" db:"currency"`
	Timezone        string          `json:"timezone" db:"timezone"`
	MeasurementUnit string          `json:"measurement_unit" db:"measurement_unit"`
	FiscalYearStart int             `json:"fiscal_year_start_month" db:"fiscal_year_start_month"`
	Modules         map[string]bool `json:"modules" db:"modules"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// DefaultSetting returns the settings every new tenant starts with.
func DefaultSetting() *Setting {
	return &Setting{
		Currency:        "INR",
		Timezone:        "Asia/Kolkata",
		MeasurementUnit: "inch",
		FiscalYearStart: int(time.April),
		Modules: map[string]bool{
			"orders":    true,
			"inquiries": true,
			"workflow":  true,
			"invoices":  true,
			"workers":   true,
			"reports":   false,
		},
	}
}

// DefaultTrialDays applies when a plan does not configure a trial length.
const DefaultTrialDays = 14

// Plan slugs used by bootstrap.
const (
	PlanStarter = "starter"
	PlanFree    = "free"
)

// Plan is a global subscription plan. Zero limits mean unlimited.
type Plan struct {
	ID           string          `json:"id" db:"id"`
	Slug         string          `json:"slug" db:"slug"`
	Name         string          `json:"name" db:"name"`
	Price        decimal.Decimal `json:"price" db:"price"`
	BillingCycle string          `json:"billing_cycle" db:"billing_cycle"`
	TrialDays    *int            `json:"trial_days,omitempty" db:"trial_days"`
	MaxUsers     int             `json:"max_users" db:"max_users"`
	MaxOrders    int             `json:"max_orders" db:"max_orders"`
	MaxCustomers int             `json:"max_customers" db:"max_customers"`
	MaxWorkers   int             `json:"max_workers" db:"max_workers"`
	IsActive     bool            `json:"is_active" db:"is_active"`
}

// TrialLength returns the configured trial, or DefaultTrialDays.
func (p *Plan) TrialLength() time.Duration {
	days := DefaultTrialDays
	if p.TrialDays != nil {
		days = *p.TrialDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// Subscription statuses
const (
	SubscriptionTrialing  = "trialing"
	SubscriptionActive    = "active"
	SubscriptionExpired   = "expired"
	SubscriptionPastDue   = "past_due"
	SubscriptionCancelled = "cancelled"
)

// Subscription links a tenant to a plan.
type Subscription struct {
	scope.Owned
	ID                 string     `json:"id" db:"id"`
	PlanID             string     `json:"plan_id" db:"plan_id"`
	Status             string     `json:"status" db:"status"`
	BillingCycle       string     `json:"billing_cycle" db:"billing_cycle"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty" db:"current_period_end"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty" db:"trial_ends_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

type currentKey struct{}

// WithCurrent binds t as the tenant of the request carried by ctx.
func WithCurrent(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, currentKey{}, t)
}

// Current returns the tenant bound to ctx, if any.
func Current(ctx context.Context) (*Tenant, bool) {
	t, ok := ctx.Value(currentKey{}).(*Tenant)
	return t, ok && t != nil
}
