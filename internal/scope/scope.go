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

// Package scope carries the acting principal through a request and turns it
// into a Scope: the only value tenant-owned data access accepts. A Scope either
// filters to exactly one tenant or, when built through Unscoped or for a
// super-admin, spans every tenant. The zero Scope matches nothing.
package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrCrossTenantWrite is returned when a record names a tenant other than the scope's.
	ErrCrossTenantWrite = errors.New("record belongs to another tenant")
	// ErrNoTenant is returned when an unfiltered scope writes a record without an owner.
	ErrNoTenant = errors.New("record has no owning tenant")
	// ErrNoScope is returned for writes through an uninitialised Scope.
	ErrNoScope = errors.New("no data scope")
)

// Principal is the authenticated caller. TenantID is empty for super-admins
// and for users that have not joined a tenant.
type Principal struct {
	UserID     string
	TenantID   string
	SuperAdmin bool
}

// HasTenant reports whether the principal acts for a tenant.
func (p Principal) HasTenant() bool {
	return p.TenantID != "" && !p.SuperAdmin
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type kind uint8

const (
	kindNone kind = iota
	kindTenant
	kindAll
)

// Scope restricts data access to one tenant or, explicitly, to none.
type Scope struct {
	kind     kind
	tenantID string
	reason   string
}

// FromContext derives the scope of the request principal. A tenant principal
// always yields a filtered scope; super-admins and unauthenticated contexts get
// an unfiltered scope. A non-admin principal without a tenant gets the zero
// Scope, which matches no rows and refuses writes.
func FromContext(ctx context.Context) Scope {
	p, ok := PrincipalFrom(ctx)
	switch {
	case !ok:
		return Scope{kind: kindAll, reason: "unauthenticated"}
	case p.SuperAdmin:
		return Scope{kind: kindAll, reason: "super_admin"}
	case p.TenantID != "":
		return Scope{kind: kindTenant, tenantID: p.TenantID}
	default:
		return Scope{}
	}
}

// ForTenant returns a scope filtered to tenantID. It is used by trusted code
// acting on behalf of a tenant without its session, e.g. bootstrap.
func ForTenant(tenantID string) Scope {
	if tenantID == "" {
		return Scope{}
	}
	return Scope{kind: kindTenant, tenantID: tenantID}
}

// Unscoped returns a scope spanning every tenant. Each call is logged.
func Unscoped(ctx context.Context, reason string) Scope {
	attrs := []slog.Attr{
		slog.String("component", "scope"),
		slog.String("reason", reason),
	}
	if p, ok := PrincipalFrom(ctx); ok {
		attrs = append(attrs, slog.String("user_id", p.UserID), slog.Bool("super_admin", p.SuperAdmin))
	}
	slog.LogAttrs(ctx, slog.LevelWarn, "unscoped data access", attrs...)
	return Scope{kind: kindAll, reason: reason}
}

// TenantID returns the filtering tenant and whether the scope filters at all.
func (s Scope) TenantID() (string, bool) {
	return s.tenantID, s.kind == kindTenant
}

// RequireTenant returns the filtering tenant. The zero Scope yields
// ErrNoScope and an unfiltered scope ErrNoTenant.
func (s Scope) RequireTenant() (string, error) {
	switch s.kind {
	case kindTenant:
		return s.tenantID, nil
	case kindAll:
		return "", ErrNoTenant
	default:
		return "", ErrNoScope
	}
}

// IsUnfiltered reports whether the scope spans all tenants.
func (s Scope) IsUnfiltered() bool {
	return s.kind == kindAll
}

// Predicate renders the SQL condition for column using placeholder $argN.
func (s Scope) Predicate(column string, argN int) (string, []any) {
	switch s.kind {
	case kindTenant:
		return fmt.Sprintf("%s = $%d", column, argN), []any{s.tenantID}
	case kindAll:
		return "TRUE", nil
	default:
		return "FALSE", nil
	}
}

// Allows reports whether rec is visible through the scope.
func (s Scope) Allows(rec Record) bool {
	switch s.kind {
	case kindTenant:
		return rec.OwnerTenantID() == s.tenantID
	case kindAll:
		return true
	default:
		return false
	}
}

// Stamp assigns the scope's tenant to rec if it has none. An owner that is
// already set is never overwritten; a filtered scope refuses a foreign owner.
func (s Scope) Stamp(rec Record) error {
	owner := rec.OwnerTenantID()
	switch s.kind {
	case kindTenant:
		if owner == "" {
			rec.SetOwnerTenantID(s.tenantID)
			return nil
		}
		if owner != s.tenantID {
			return ErrCrossTenantWrite
		}
		return nil
	case kindAll:
		if owner == "" {
			return ErrNoTenant
		}
		return nil
	default:
		return ErrNoScope
	}
}

func (s Scope) String() string {
	switch s.kind {
	case kindTenant:
		return "tenant:" + s.tenantID
	case kindAll:
		return "all:" + s.reason
	default:
		return "none"
	}
}
