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

	"github.com/atelierhq/atelier/internal/identity"
)

// UserRepository implements identity.UserRepository. Email is unique across
// the platform, so lookups by email are not tenant scoped; the tenant comes
// from the user row.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, tenant_id, name, email, mobile, password_hash, email_verified_at,
	is_super_admin, is_active, failed_login_attempts, locked_until, created_at, updated_at`

// Create creates a new user identity
func (r *UserRepository) Create(ctx context.Context, u *identity.User) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		u.ID, u.TenantID, u.Name, u.Email, u.Mobile, u.PasswordHash, u.EmailVerifiedAt,
		u.IsSuperAdmin, u.IsActive, u.FailedLoginAttempts, u.LockedUntil, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err, "users_email_key") {
		return identity.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) getBy(ctx context.Context, column string, value any) (*identity.User, error) {
	rows, err := r.db.pool.Query(ctx, "SELECT "+userColumns+" FROM users WHERE "+column+" = $1", value)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[identity.User])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, identity.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, identity.ErrUserNotFound
	}
	return r.getBy(ctx, "id", id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepository) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.db.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// UpdateLockout records failed attempts and the lock deadline
func (r *UserRepository) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	return r.exec(ctx, "update lockout", `
		UPDATE users SET failed_login_attempts = $2, locked_until = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, failedAttempts, lockedUntil)
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	return r.exec(ctx, "mark email verified", `
		UPDATE users SET email_verified_at = COALESCE(email_verified_at, $2), updated_at = $2
		WHERE id = $1
	`, userID, at)
}

func (r *UserRepository) SetSuperAdmin(ctx context.Context, userID string, superAdmin, active bool) error {
	return r.exec(ctx, "update super admin flags", `
		UPDATE users SET is_super_admin = $2, is_active = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, superAdmin, active)
}

func (r *UserRepository) ListSuperAdmins(ctx context.Context) ([]*identity.User, error) {
	rows, err := r.db.pool.Query(ctx, "SELECT "+userColumns+" FROM users WHERE is_super_admin ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list super admins: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[identity.User])
}
