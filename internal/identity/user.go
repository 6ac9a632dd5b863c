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

package identity

import (
	"context"
	"errors"
	"time"

	"github.com/atelierhq/atelier/internal/scope"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
	ErrAccountLocked      = errors.New("account is locked")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrNotSuperAdmin      = errors.New("user is not a super admin")
	ErrSelfRevoke         = errors.New("super admins cannot revoke themselves")
)

// User is a login principal. Super-admins carry no tenant; every other user
// belongs to exactly one tenant.
type User struct {
	ID                  string     `json:"id" db:"id"`
	TenantID            *string    `json:"tenant_id,omitempty" db:"tenant_id"`
	Name                string     `json:"name" db:"name"`
	Email               string     `json:"email" db:"email"`
	Mobile              string     `json:"mobile,omitempty" db:"mobile"`
	PasswordHash        string     `json:"-" db:"password_hash"`
	EmailVerifiedAt     *time.Time `json:"email_verified_at,omitempty" db:"email_verified_at"`
	IsSuperAdmin        bool       `json:"is_super_admin" db:"is_super_admin"`
	IsActive            bool       `json:"is_active" db:"is_active"`
	FailedLoginAttempts int        `json:"-" db:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"-" db:"locked_until"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// Principal returns the request principal for u.
func (u *User) Principal() scope.Principal {
	p := scope.Principal{UserID: u.ID, SuperAdmin: u.IsSuperAdmin}
	if u.TenantID != nil && !u.IsSuperAdmin {
		p.TenantID = *u.TenantID
	}
	return p
}

// EmailVerified reports whether the address has been confirmed.
func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create inserts u; a duplicate email yields ErrUserAlreadyExists.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	// GetByEmail looks up a user by the globally unique email.
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error
	// SetSuperAdmin flips the super-admin and active flags together.
	SetSuperAdmin(ctx context.Context, userID string, superAdmin, active bool) error
	ListSuperAdmins(ctx context.Context) ([]*User, error)
}
