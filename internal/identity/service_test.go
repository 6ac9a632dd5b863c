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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/internal/audit"
)

// MockUserRepository is a simple in-memory implementation of UserRepository
type MockUserRepository struct {
	users map[string]*User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*User)}
}

func (m *MockUserRepository) Create(_ context.Context, user *User) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return ErrUserAlreadyExists
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *MockUserRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserRepository) UpdateLockout(_ context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockedUntil = lockedUntil
	return nil
}

func (m *MockUserRepository) MarkEmailVerified(_ context.Context, userID string, at time.Time) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.EmailVerifiedAt = &at
	return nil
}

func (m *MockUserRepository) SetSuperAdmin(_ context.Context, userID string, superAdmin, active bool) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.IsSuperAdmin = superAdmin
	u.IsActive = active
	return nil
}

func (m *MockUserRepository) ListSuperAdmins(_ context.Context) ([]*User, error) {
	var out []*User
	for _, u := range m.users {
		if u.IsSuperAdmin {
			out = append(out, u)
		}
	}
	return out, nil
}

func newTestService(repo UserRepository) *Service {
	// low-cost argon2 parameters keep the suite fast
	return NewService(repo, NewPasswordHasher(1024, 1, 1, 16, 32), audit.Nop{}, 3, 15*time.Minute)
}

// TestPurpose: Validates that a password hash verifies only the original password.
// Scope: Unit Test
// Security: Credential storage (CWE-916)
// Expected: Correct password verifies; wrong password and corrupted hash do not.
// Test Case ID: IDN-01
func TestPasswordHasher_RoundTrip(t *testing.T) {
	h := NewPasswordHasher(1024, 1, 1, 16, 32)
	hash, err := h.Hash("correct-horse")
	require.NoError(t, err)

	ok, err := h.Verify("correct-horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong-horse", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("correct-horse", "$bcrypt$nope")
	assert.Error(t, err)
}

// TestPurpose: Validates registration rejects duplicate global emails and weak passwords.
// Scope: Unit Test
// Expected: Second user with same email (any case) fails; short password fails.
// Test Case ID: IDN-02
func TestService_Register(t *testing.T) {
	svc := newTestService(NewMockUserRepository())
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{TenantID: "A", Name: "Meera", Email: "Meera@Example.com", Password: "s3cretpass"})
	require.NoError(t, err)
	assert.Equal(t, "meera@example.com", u.Email)
	assert.Equal(t, "A", *u.TenantID)
	assert.True(t, u.IsActive)
	assert.False(t, u.EmailVerified())
	assert.Equal(t, "A", u.Principal().TenantID)

	_, err = svc.Register(ctx, RegisterInput{TenantID: "B", Email: "MEERA@example.com", Password: "s3cretpass"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists, "emails are unique across tenants")

	_, err = svc.Register(ctx, RegisterInput{TenantID: "B", Email: "x@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.Register(ctx, RegisterInput{TenantID: "B", Email: "not-an-email", Password: "s3cretpass"})
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

// TestPurpose: Validates account lockout after repeated failed logins.
// Scope: Unit Test
// Security: Brute-force protection (CWE-307)
// Expected: Third failure locks; correct password is then refused until the lock expires.
// Test Case ID: IDN-03
func TestService_Authenticate_Lockout(t *testing.T) {
	repo := NewMockUserRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	now := time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Register(ctx, RegisterInput{TenantID: "A", Email: "a@example.com", Password: "s3cretpass"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Authenticate(ctx, "a@example.com", "wrong-pass")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = svc.Authenticate(ctx, "a@example.com", "s3cretpass")
	assert.ErrorIs(t, err, ErrAccountLocked)

	now = now.Add(16 * time.Minute)
	u, err := svc.Authenticate(ctx, "A@example.com", "s3cretpass")
	require.NoError(t, err)
	assert.Zero(t, u.FailedLoginAttempts)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cretpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

// TestPurpose: Validates super-admin creation and revocation rules.
// Scope: Unit Test
// Security: Privilege management
// Expected: Super-admin has no tenant; self-revoke and revoking a non-admin are refused; revoke keeps the row but disables it.
// Test Case ID: IDN-04
func TestService_SuperAdmins(t *testing.T) {
	repo := NewMockUserRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	root, err := svc.CreateSuperAdmin(ctx, "system", "Root", "root@atelier.app", "rootpass1")
	require.NoError(t, err)
	assert.Nil(t, root.TenantID)
	assert.True(t, root.IsSuperAdmin)
	assert.True(t, root.IsActive)
	assert.True(t, root.Principal().SuperAdmin)
	assert.Empty(t, root.Principal().TenantID)

	other, err := svc.CreateSuperAdmin(ctx, root.ID, "Ops", "ops@atelier.app", "opspass12")
	require.NoError(t, err)

	member, err := svc.Register(ctx, RegisterInput{TenantID: "A", Email: "m@example.com", Password: "memberpass"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RevokeSuperAdmin(ctx, root.ID, root.ID), ErrSelfRevoke)
	assert.ErrorIs(t, svc.RevokeSuperAdmin(ctx, root.ID, member.ID), ErrNotSuperAdmin)

	require.NoError(t, svc.RevokeSuperAdmin(ctx, root.ID, other.ID))
	revoked, err := repo.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, revoked.IsSuperAdmin)
	assert.False(t, revoked.IsActive)

	_, err = svc.Authenticate(ctx, "ops@atelier.app", "opspass12")
	assert.ErrorIs(t, err, ErrAccountDisabled)

	admins, err := svc.ListSuperAdmins(ctx)
	require.NoError(t, err)
	assert.Len(t, admins, 1)
}

// TestPurpose: Validates the first super-admin bootstrap runs once.
// Scope: Unit Test
// Expected: Creates an admin when none exist; skips when one exists or email is unset.
// Test Case ID: IDN-05
func TestBootstrapService_Bootstrap(t *testing.T) {
	repo := NewMockUserRepository()
	b := NewBootstrapService(newTestService(repo))
	ctx := context.Background()

	u, err := b.Bootstrap(ctx, BootstrapConfig{})
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = b.Bootstrap(ctx, BootstrapConfig{Email: "root@atelier.app", Password: "rootpass1", Name: "Root"})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.IsSuperAdmin)

	u, err = b.Bootstrap(ctx, BootstrapConfig{Email: "second@atelier.app", Password: "rootpass1"})
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestService_MarkEmailVerified(t *testing.T) {
	repo := NewMockUserRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{TenantID: "A", Email: "v@example.com", Password: "s3cretpass"})
	require.NoError(t, err)
	require.NoError(t, svc.MarkEmailVerified(ctx, u.ID))
	assert.True(t, u.EmailVerified())
	first := *u.EmailVerifiedAt

	require.NoError(t, svc.MarkEmailVerified(ctx, u.ID))
	assert.Equal(t, first, *u.EmailVerifiedAt)
	assert.ErrorIs(t, svc.MarkEmailVerified(ctx, "missing"), ErrUserNotFound)
}
