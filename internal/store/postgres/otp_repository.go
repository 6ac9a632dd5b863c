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

	"github.com/atelierhq/atelier/internal/otp"
	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/scope"
)

// OTPRepository implements otp.Repository. Slot access takes a transaction
// scoped advisory lock on (tenant, purpose); the partial unique index
// uq_otps_pending backs it up at the schema level.
type OTPRepository struct {
	db *DB
}

func NewOTPRepository(db *DB) *OTPRepository {
	return &OTPRepository{db: db}
}

const otpColumns = "tenant_id, id, user_id, purpose, code, expires_at, attempts, resend_count, verified_at, created_at"

func (r *OTPRepository) WithSlot(ctx context.Context, s scope.Scope, purpose string, fn func(context.Context, otp.Slot) error) error {
	tenantID, ok := s.TenantID()
	if !ok {
		return scope.ErrNoTenant
	}
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID+":"+purpose); err != nil {
			return fmt.Errorf("failed to lock otp slot: %w", err)
		}
		return fn(ctx, &otpSlot{tx: tx, scope: s, tenantID: tenantID, purpose: purpose})
	})
}

func findActive(ctx context.Context, q querier, tenantID, purpose string) (*otp.OTP, error) {
	rows, err := q.Query(ctx, `
		SELECT `+otpColumns+`
		FROM otps
		WHERE tenant_id = $1 AND purpose = $2 AND verified_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID, purpose)
	if err != nil {
		return nil, fmt.Errorf("failed to find otp: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[otp.OTP])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find otp: %w", err)
	}
	return rec, nil
}

func (r *OTPRepository) FindActive(ctx context.Context, s scope.Scope, purpose string) (*otp.OTP, error) {
	tenantID, ok := s.TenantID()
	if !ok {
		return nil, scope.ErrNoTenant
	}
	return findActive(ctx, r.db.pool, tenantID, purpose)
}

func (r *OTPRepository) IncrementAttempts(ctx context.Context, s scope.Scope, otpID string) (int, error) {
	if _, err := uuid.Parse(otpID); err != nil {
		return 0, records.ErrNotFound
	}
	cond, args, n := where(s)
	var attempts int
	err := r.db.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE otps SET attempts = attempts + 1
		%s AND id = $%d
		RETURNING attempts`, cond, n), append(args, otpID)...).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, records.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count otp attempt: %w", err)
	}
	return attempts, nil
}

// MarkVerified only closes a still pending code, so of two concurrent
// verifications exactly one sees true.
func (r *OTPRepository) MarkVerified(ctx context.Context, s scope.Scope, otpID string, at time.Time) (bool, error) {
	if _, err := uuid.Parse(otpID); err != nil {
		return false, nil
	}
	cond, args, n := where(s)
	tag, err := r.db.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE otps SET verified_at = $%d
		%s AND id = $%d AND verified_at IS NULL`, n, cond, n+1), append(args, at, otpID)...)
	if err != nil {
		return false, fmt.Errorf("failed to verify otp: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

type otpSlot struct {
	tx       pgx.Tx
	scope    scope.Scope
	tenantID string
	purpose  string
}

func (s *otpSlot) Active(ctx context.Context) (*otp.OTP, error) {
	return findActive(ctx, s.tx, s.tenantID, s.purpose)
}

func (s *otpSlot) CloseAll(ctx context.Context, at time.Time) error {
	_, err := s.tx.Exec(ctx, `
		UPDATE otps SET verified_at = $3
		WHERE tenant_id = $1 AND purpose = $2 AND verified_at IS NULL
	`, s.tenantID, s.purpose, at)
	if err != nil {
		return fmt.Errorf("failed to close otps: %w", err)
	}
	return nil
}

func (s *otpSlot) Insert(ctx context.Context, o *otp.OTP) error {
	if err := s.scope.Stamp(o); err != nil {
		return err
	}
	o.Purpose = s.purpose
	_, err := s.tx.Exec(ctx, `
		INSERT INTO otps (`+otpColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, o.TenantID, o.ID, o.UserID, o.Purpose, o.Code, o.ExpiresAt, o.Attempts, o.ResendCount, o.VerifiedAt, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert otp: %w", err)
	}
	return nil
}
