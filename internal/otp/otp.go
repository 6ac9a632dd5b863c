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

// Package otp issues and checks six-digit one-time codes for a
// (tenant, purpose) slot. At most one code per slot is pending at a time:
// issuing a new code closes every earlier pending code of the slot.
package otp

import (
	"context"
	"errors"
	"time"

	"github.com/atelierhq/atelier/internal/scope"
)

// Common purposes.
const (
	PurposeRegistration = "registration"
	PurposeLogin        = "login"
)

// CodeLength is the number of digits in a code.
const CodeLength = 6

var (
	ErrResendExhausted = errors.New("otp resend limit reached")
	ErrPurposeRequired = errors.New("otp purpose is required")
	ErrTenantRequired  = errors.New("otp tenant is required")
)

// Result is the outcome of Verify.
type Result string

const (
	ResultOK       Result = "ok"
	ResultNotFound Result = "not_found"
	ResultExpired  Result = "expired"
	ResultInvalid  Result = "invalid"
)

// OTP is an issued code. Rows are closed by setting VerifiedAt, never deleted.
type OTP struct {
	scope.Owned
	ID          string     `json:"id" db:"id"`
	UserID      *string    `json:"user_id,omitempty" db:"user_id"`
	Purpose     string     `json:"purpose" db:"purpose"`
	Code        string     `json:"-" db:"code"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	Attempts    int        `json:"attempts" db:"attempts"`
	ResendCount int        `json:"resend_count" db:"resend_count"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// IsExpired reports whether the code can no longer be used at now.
func (o *OTP) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// IsExhausted reports whether the slot may not be resent again.
func (o *OTP) IsExhausted(maxResends int) bool {
	return o.ResendCount >= maxResends
}

// IsPending reports whether the code is still open.
func (o *OTP) IsPending() bool {
	return o.VerifiedAt == nil
}

// Slot is the serialized view of one (tenant, purpose) pair inside WithSlot.
type Slot interface {
	// Active returns the most recent pending code, or nil.
	Active(ctx context.Context) (*OTP, error)
	// CloseAll sets verified_at on every pending code of the slot.
	CloseAll(ctx context.Context, at time.Time) error
	Insert(ctx context.Context, o *OTP) error
}

// Repository persists codes.
type Repository interface {
	// WithSlot runs fn with exclusive access to the slot of (scope tenant, purpose).
	// Concurrent callers for the same slot run one after the other.
	WithSlot(ctx context.Context, s scope.Scope, purpose string, fn func(ctx context.Context, slot Slot) error) error
	// FindActive returns the most recent pending code of the slot, or nil.
	FindActive(ctx context.Context, s scope.Scope, purpose string) (*OTP, error)
	// IncrementAttempts adds one to the attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, s scope.Scope, otpID string) (int, error)
	// MarkVerified closes a pending code. It reports false when the code was
	// already closed by a concurrent caller.
	MarkVerified(ctx context.Context, s scope.Scope, otpID string, at time.Time) (bool, error)
}

// EmailMessage is what the mailer needs to render a code email.
type EmailMessage struct {
	To         string
	Name       string
	TenantName string
	Code       string
	ValidFor   time.Duration
}

// Sender delivers codes. Implementations may queue delivery; an error means
// the message could not even be accepted.
type Sender interface {
	SendOTPEmail(ctx context.Context, m EmailMessage) error
	SendOTPSMS(ctx context.Context, mobile, code string) error
}
