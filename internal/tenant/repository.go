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
	"time"

	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/scope"
)

var (
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrSubdomainTaken       = errors.New("subdomain already taken")
	ErrSettingsNotFound     = errors.New("tenant settings not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPlanNotFound         = errors.New("no starter or free plan configured")
	ErrInvalidStatus        = errors.New("invalid tenant status")
)

// Repository stores tenants. Tenants are platform rows, not tenant-owned.
type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error
	UpdateStatus(ctx context.Context, id, status string, at time.Time) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// SettingsRepository stores the one settings row of a tenant.
type SettingsRepository interface {
	Get(ctx context.Context, s scope.Scope) (*Setting, error)
	Update(ctx context.Context, s scope.Scope, st *Setting) error
}

// SubscriptionRepository reads subscriptions for the gate and maintenance.
type SubscriptionRepository interface {
	Get(ctx context.Context, s scope.Scope) (*Subscription, error)
	// ExpireLapsed marks active subscriptions whose period ended before now as expired.
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}

// PlanRepository reads global plans.
type PlanRepository interface {
	GetByID(ctx context.Context, id string) (*Plan, error)
	GetBySlug(ctx context.Context, slug string) (*Plan, error)
}

// Usage counts the records a scope owns.
type Usage struct {
	Users     int `json:"users"`
	Orders    int `json:"orders"`
	Customers int `json:"customers"`
	Workers   int `json:"workers"`
}

// UsageReader counts tenant-owned rows. An unfiltered scope yields platform totals.
type UsageReader interface {
	Usage(ctx context.Context, s scope.Scope) (Usage, error)
}

// ProvisionTx is the write surface of one bootstrap transaction.
type ProvisionTx interface {
	UpsertSettings(ctx context.Context, s scope.Scope, st *Setting) error
	InsertMasterRecords(ctx context.Context, s scope.Scope, recs []*records.MasterRecord) error
	InsertWorkflowStages(ctx context.Context, s scope.Scope, stages []*records.WorkflowStage) error
	InsertSequences(ctx context.Context, s scope.Scope, seqs []*records.NumberSequence) error
	GetSubscription(ctx context.Context, s scope.Scope) (*Subscription, error)
	GetPlanBySlug(ctx context.Context, slug string) (*Plan, error)
	CreateSubscription(ctx context.Context, s scope.Scope, sub *Subscription) error
}

// Provisioner runs fn in a single transaction, rolling back if fn returns an error.
type Provisioner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx ProvisionTx) error) error
}
