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
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/id"
)

const minPasswordLength = 8

// Service provides identity-related business logic
type Service struct {
	repo               UserRepository
	hasher             *PasswordHasher
	auditLogger        audit.Logger
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
	now                func() time.Time
}

// NewService creates a new identity service
func NewService(
	repo UserRepository,
	hasher *PasswordHasher,
	auditLogger audit.Logger,
	lockoutMaxAttempts int,
	lockoutDuration time.Duration,
) *Service {
	return &Service{
		repo:               repo,
		hasher:             hasher,
		auditLogger:        auditLogger,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
		now:                time.Now,
	}
}

// NormalizeEmail trims and lowercases an address, rejecting malformed ones.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(email) < 3 || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// EmailAvailable reports whether no user holds email yet.
func (s *Service) EmailAvailable(ctx context.Context, email string) (bool, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return false, err
	}
	_, err = s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, ErrUserNotFound):
		return true, nil
	default:
		return false, err
	}
}

// RegisterInput describes a tenant member account.
type RegisterInput struct {
	TenantID string
	Name     string
	Email    string
	Mobile   string
	Password string
}

// Register creates an active, unverified member of a tenant.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if in.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	tenantID := in.TenantID
	u, err := s.newUser(ctx, in.Name, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	u.TenantID = &tenantID
	u.Mobile = strings.TrimSpace(in.Mobile)

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.auditLogger.Log(ctx, audit.Event{Type: audit.TypeUserCreated, TenantID: tenantID, ActorID: u.ID, Resource: u.Email})
	return u, nil
}

func (s *Service) newUser(ctx context.Context, name, email, password string) (*User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now()
	return &User{
		ID:           id.NewUUIDv7(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Authenticate authenticates a user with email and password
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Resource: email,
			Metadata: map[string]any{"reason": "user_not_found"},
		})
		return nil, ErrInvalidCredentials
	}
	tenantID := ""
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}

	now := s.now()
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			TenantID: tenantID,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{"reason": "locked_out"},
		})
		return nil, ErrAccountLocked
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		attempts := user.FailedLoginAttempts + 1
		var lockedUntil *time.Time
		if s.lockoutMaxAttempts > 0 && attempts >= s.lockoutMaxAttempts {
			until := now.Add(s.lockoutDuration)
			lockedUntil = &until
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeUserLocked,
				TenantID: tenantID,
				ActorID:  user.ID,
				Resource: "login",
				Metadata: map[string]any{"attempts": attempts},
			})
		}
		if err := s.repo.UpdateLockout(ctx, user.ID, attempts, lockedUntil); err != nil {
			return nil, fmt.Errorf("failed to record login failure: %w", err)
		}
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			TenantID: tenantID,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{"reason": "invalid_password", "attempts": attempts},
		})
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		if err := s.repo.UpdateLockout(ctx, user.ID, 0, nil); err != nil {
			return nil, fmt.Errorf("failed to reset lockout: %w", err)
		}
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		TenantID: tenantID,
		ActorID:  user.ID,
		Resource: "login",
	})
	return user, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}

// GetByEmail retrieves a user by email
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// MarkEmailVerified records the confirmation of a user's address. It is a
// no-op for already verified users.
func (s *Service) MarkEmailVerified(ctx context.Context, userID string) error {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.EmailVerified() {
		return nil
	}
	if err := s.repo.MarkEmailVerified(ctx, userID, s.now()); err != nil {
		return err
	}
	tenantID := ""
	if u.TenantID != nil {
		tenantID = *u.TenantID
	}
	s.auditLogger.Log(ctx, audit.Event{Type: audit.TypeEmailVerified, TenantID: tenantID, ActorID: userID})
	return nil
}

// CreateSuperAdmin creates a tenant-less, active, verified super-admin.
func (s *Service) CreateSuperAdmin(ctx context.Context, actorID, name, email, password string) (*User, error) {
	u, err := s.newUser(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	u.TenantID = nil
	u.IsSuperAdmin = true
	u.IsActive = true
	u.EmailVerifiedAt = &now

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.auditLogger.Log(ctx, audit.Event{Type: audit.TypeSuperAdminCreated, ActorID: actorID, Resource: u.ID})
	return u, nil
}

// RevokeSuperAdmin clears the super-admin and active flags of targetID.
// The account row is kept.
func (s *Service) RevokeSuperAdmin(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return ErrSelfRevoke
	}
	u, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if !u.IsSuperAdmin {
		return ErrNotSuperAdmin
	}
	if err := s.repo.SetSuperAdmin(ctx, targetID, false, false); err != nil {
		return err
	}
	s.auditLogger.Log(ctx, audit.Event{Type: audit.TypeSuperAdminRevoked, ActorID: actorID, Resource: targetID})
	return nil
}

// ListSuperAdmins lists current super-admin accounts.
func (s *Service) ListSuperAdmins(ctx context.Context) ([]*User, error) {
	return s.repo.ListSuperAdmins(ctx)
}
