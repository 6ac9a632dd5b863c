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
	"regexp"
	"strings"
	"time"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/events"
	"github.com/atelierhq/atelier/internal/id"
	"github.com/atelierhq/atelier/internal/scope"
)

var (
	ErrInvalidSubdomain  = errors.New("invalid subdomain")
	ErrReservedSubdomain = errors.New("subdomain is reserved")
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{1,61}[a-z0-9])$`)

var reservedSubdomains = map[string]struct{}{
	"www": {}, "api": {}, "app": {}, "admin": {}, "mail": {}, "static": {},
	"assets": {}, "help": {}, "support": {}, "status": {}, "billing": {},
	"login": {}, "signup": {}, "dashboard": {}, "atelier": {},
}

// NormalizeSubdomain lowercases and validates a requested subdomain.
func NormalizeSubdomain(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !subdomainPattern.MatchString(s) {
		return "", ErrInvalidSubdomain
	}
	if _, ok := reservedSubdomains[s]; ok {
		return "", ErrReservedSubdomain
	}
	return s, nil
}

// Service provides tenant management business logic
type Service struct {
	repo        Repository
	settings    SettingsRepository
	subs        SubscriptionRepository
	plans       PlanRepository
	usage       UsageReader
	bootstrap   *BootstrapService
	publisher   events.Publisher
	auditLogger audit.Logger
	now         func() time.Time
}

// NewService creates a new tenant service
func NewService(
	repo Repository,
	settings SettingsRepository,
	subs SubscriptionRepository,
	plans PlanRepository,
	usage UsageReader,
	bootstrap *BootstrapService,
	publisher events.Publisher,
	auditLogger audit.Logger,
) *Service {
	return &Service{
		repo:        repo,
		settings:    settings,
		subs:        subs,
		plans:       plans,
		usage:       usage,
		bootstrap:   bootstrap,
		publisher:   publisher,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// SubdomainAvailable validates raw and reports whether no tenant uses it.
func (s *Service) SubdomainAvailable(ctx context.Context, raw string) (bool, error) {
	sub, err := NormalizeSubdomain(raw)
	if err != nil {
		return false, err
	}
	_, err = s.repo.GetBySubdomain(ctx, sub)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, ErrTenantNotFound):
		return true, nil
	default:
		return false, err
	}
}

// CreateTenant inserts a tenant in trial status. Bootstrap is a separate step.
func (s *Service) CreateTenant(ctx context.Context, name, subdomain, email string) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	sub, err := NormalizeSubdomain(subdomain)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetBySubdomain(ctx, sub); err == nil {
		return nil, ErrSubdomainTaken
	} else if !errors.Is(err, ErrTenantNotFound) {
		return nil, err
	}

	now := s.now()
	t := &Tenant{
		ID:        id.NewUUIDv7(),
		Subdomain: sub,
		Name:      name,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Status:    StatusTrial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{Type: audit.TypeTenantCreated, TenantID: t.ID, Resource: t.Subdomain})
	events.Emit(ctx, s.publisher, events.Event{
		Type:     events.TenantCreated,
		TenantID: t.ID,
		Data:     map[string]any{"subdomain": t.Subdomain, "name": t.Name},
	})
	return t, nil
}

// Bootstrap (re)runs workspace provisioning for an existing tenant. It is
// idempotent, so an admin can retry a failed signup.
func (s *Service) Bootstrap(ctx context.Context, actorID, tenantID string) error {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := s.bootstrap.InitializeNewTenant(ctx, t); err != nil {
		return err
	}
	s.auditLogger.Log(ctx, audit.Event{Type: audit.TypeTenantBootstrapped, TenantID: t.ID, ActorID: actorID})
	events.Emit(ctx, s.publisher, events.Event{Type: events.TenantBootstrapped, TenantID: t.ID, ActorID: actorID})
	return nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// ListTenants lists tenants with pagination
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	return s.repo.List(ctx, limit, offset)
}

// UpdateStatus writes the status directly; the gate picks it up on the next request.
func (s *Service) UpdateStatus(ctx context.Context, actorID, tenantID, status string) (*Tenant, error) {
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	previous := t.Status
	now := s.now()
	if err := s.repo.UpdateStatus(ctx, tenantID, status, now); err != nil {
		return nil, fmt.Errorf("failed to update tenant status: %w", err)
	}
	t.Status = status
	t.UpdatedAt = now

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantStatusChanged,
		TenantID: tenantID,
		ActorID:  actorID,
		Metadata: map[string]any{"from": previous, "to": status},
	})
	events.Emit(ctx, s.publisher, events.Event{
		Type:     events.TenantStatusChanged,
		TenantID: tenantID,
		ActorID:  actorID,
		Data:     map[string]any{"from": previous, "to": status},
	})
	return t, nil
}

// Workspace is what a tenant member sees of their own tenant.
type Workspace struct {
	Tenant       *Tenant       `json:"tenant"`
	Settings     *Setting      `json:"settings"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// Workspace loads the caller's tenant, settings and subscription.
func (s *Service) Workspace(ctx context.Context) (*Workspace, error) {
	sc := scope.FromContext(ctx)
	tenantID, ok := sc.TenantID()
	if !ok {
		return nil, scope.ErrNoTenant
	}
	t, bound := Current(ctx)
	if !bound || t.ID != tenantID {
		var err error
		if t, err = s.repo.GetByID(ctx, tenantID); err != nil {
			return nil, err
		}
	}
	st, err := s.settings.Get(ctx, sc)
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.Get(ctx, sc)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}
	return &Workspace{Tenant: t, Settings: st, Subscription: sub}, nil
}

// SettingsUpdate holds the optional fields of a settings change.
type SettingsUpdate struct {
	Currency        *string         `json:"currency" validate:"omitempty,len=3,alpha"`
	Timezone        *string         `json:"timezone" validate:"omitempty,timezone"`
	MeasurementUnit *string         `json:"measurement_unit" validate:"omitempty,oneof=inch cm"`
	FiscalYearStart *int            `json:"fiscal_year_start_month" validate:"omitempty,min=1,max=12"`
	Modules         map[string]bool `json:"modules"`
}

// UpdateSettings applies in to the caller's settings row.
func (s *Service) UpdateSettings(ctx context.Context, actorID string, in SettingsUpdate) (*Setting, error) {
	sc := scope.FromContext(ctx)
	tenantID, ok := sc.TenantID()
	if !ok {
		return nil, scope.ErrNoTenant
	}
	st, err := s.settings.Get(ctx, sc)
	if err != nil {
		return nil, err
	}
	if in.Currency != nil {
		st.Currency = strings.ToUpper(*in.Currency)
	}
	if in.Timezone != nil {
		st.Timezone = *in.Timezone
	}
	if in.MeasurementUnit != nil {
		st.MeasurementUnit = *in.MeasurementUnit
	}
	if in.FiscalYearStart != nil {
		st.FiscalYearStart = *in.FiscalYearStart
	}
	if st.Modules == nil {
		st.Modules = map[string]bool{}
	}
	for k, v := range in.Modules {
		st.Modules[k] = v
	}
	st.UpdatedAt = s.now()
	if err := s.settings.Update(ctx, sc, st); err != nil {
		return nil, err
	}
	s.auditLogger.Log(ctx, audit.Event{Type: audit.TypeSettingsUpdated, TenantID: tenantID, ActorID: actorID})
	return st, nil
}

// CompleteOnboarding sets the onboarding flag of the caller's tenant.
func (s *Service) CompleteOnboarding(ctx context.Context, actorID string) (*Tenant, error) {
	tenantID, ok := scope.FromContext(ctx).TenantID()
	if !ok {
		return nil, scope.ErrNoTenant
	}
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.OnboardingCompleted {
		return t, nil
	}
	t.OnboardingCompleted = true
	t.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.auditLogger.Log(ctx, audit.Event{Type: audit.TypeOnboardingCompleted, TenantID: tenantID, ActorID: actorID})
	return t, nil
}

// Limit pairs a usage count with its plan ceiling (0 = unlimited).
type Limit struct {
	Used int  `json:"used"`
	Max  int  `json:"max"`
	Over bool `json:"over"`
}

func limit(used, max int) Limit {
	return Limit{Used: used, Max: max, Over: max > 0 && used > max}
}

// Overview is the admin view of one tenant.
type Overview struct {
	Tenant       *Tenant          `json:"tenant"`
	Subscription *Subscription    `json:"subscription,omitempty"`
	Plan         *Plan            `json:"plan,omitempty"`
	Usage        map[string]Limit `json:"usage"`
}

// Overview computes a tenant's KPIs against its plan limits.
func (s *Service) Overview(ctx context.Context, tenantID string) (*Overview, error) {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sc := scope.ForTenant(t.ID)
	ov := &Overview{Tenant: t}

	sub, err := s.subs.Get(ctx, sc)
	switch {
	case err == nil:
		ov.Subscription = sub
		plan, err := s.plans.GetByID(ctx, sub.PlanID)
		if err != nil && !errors.Is(err, ErrPlanNotFound) {
			return nil, err
		}
		ov.Plan = plan
	case !errors.Is(err, ErrSubscriptionNotFound):
		return nil, err
	}

	u, err := s.usage.Usage(ctx, sc)
	if err != nil {
		return nil, err
	}
	var p Plan
	if ov.Plan != nil {
		p = *ov.Plan
	}
	ov.Usage = map[string]Limit{
		"users":     limit(u.Users, p.MaxUsers),
		"orders":    limit(u.Orders, p.MaxOrders),
		"customers": limit(u.Customers, p.MaxCustomers),
		"workers":   limit(u.Workers, p.MaxWorkers),
	}
	return ov, nil
}

// Stats is the platform-wide aggregate.
type Stats struct {
	Tenants         int            `json:"tenants"`
	TenantsByStatus map[string]int `json:"tenants_by_status"`
	Totals          Usage          `json:"totals"`
}

// Stats aggregates across every tenant through the unscoped escape hatch.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}
	u, err := s.usage.Usage(ctx, scope.Unscoped(ctx, "admin_stats"))
	if err != nil {
		return nil, err
	}
	return &Stats{Tenants: total, TenantsByStatus: byStatus, Totals: u}, nil
}
