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

	"github.com/atelierhq/atelier/internal/scope"
)

// Gate denial reasons. A tenant whose status is not allowed is reported by
// its status value instead.
const (
	ReasonNoOrganization       = "no_organization"
	ReasonNoActiveSubscription = "no_active_subscription"
	ReasonExpired              = "expired"
	ReasonTrialEnded           = "trial_ended"
)

// Decision is the outcome of the subscription gate.
type Decision struct {
	Allowed bool
	Reason  string
}

var allow = Decision{Allowed: true}

func deny(reason string) Decision { return Decision{Reason: reason} }

// Evaluate applies the gate rules in order. p is nil when the request is
// unauthenticated; t and sub are nil when they do not exist.
func Evaluate(p *scope.Principal, t *Tenant, sub *Subscription, now time.Time) Decision {
	switch {
	case p == nil:
		return allow
	case p.SuperAdmin:
		return allow
	case p.TenantID == "" || t == nil:
		return deny(ReasonNoOrganization)
	}

	if t.Status != StatusActive && t.Status != StatusTrial {
		return deny(t.Status)
	}

	if sub == nil {
		return deny(ReasonNoActiveSubscription)
	}
	if sub.Status == SubscriptionExpired || (sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.Before(now)) {
		return deny(ReasonExpired)
	}
	if sub.Status == SubscriptionTrialing && sub.TrialEndsAt != nil && sub.TrialEndsAt.Before(now) {
		return deny(ReasonTrialEnded)
	}
	return allow
}

// Gate loads the tenant and subscription of a principal and evaluates them.
type Gate struct {
	tenants Repository
	subs    SubscriptionRepository
	now     func() time.Time
}

// NewGate creates a new subscription gate
func NewGate(tenants Repository, subs SubscriptionRepository) *Gate {
	return &Gate{tenants: tenants, subs: subs, now: time.Now}
}

// Check evaluates the gate for the principal in ctx. A tenant already bound
// to ctx is reused; otherwise it is loaded and returned for binding.
func (g *Gate) Check(ctx context.Context) (Decision, *Tenant, error) {
	p, ok := scope.PrincipalFrom(ctx)
	if !ok {
		return Evaluate(nil, nil, nil, g.now()), nil, nil
	}
	if p.SuperAdmin || p.TenantID == "" {
		return Evaluate(&p, nil, nil, g.now()), nil, nil
	}

	t, bound := Current(ctx)
	if !bound || t.ID != p.TenantID {
		var err error
		t, err = g.tenants.GetByID(ctx, p.TenantID)
		if err != nil {
			if errors.Is(err, ErrTenantNotFound) {
				return Evaluate(&p, nil, nil, g.now()), nil, nil
			}
			return Decision{}, nil, err
		}
	}

	sub, err := g.subs.Get(ctx, scope.ForTenant(t.ID))
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return Decision{}, nil, err
	}
	return Evaluate(&p, t, sub, g.now()), t, nil
}
