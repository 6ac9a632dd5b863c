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

package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/id"
	"github.com/atelierhq/atelier/internal/observability/logger"
	"github.com/atelierhq/atelier/internal/observability/metrics"
	"github.com/atelierhq/atelier/internal/observability/tracing"
	"github.com/atelierhq/atelier/internal/scope"
)

// DefaultTTL is how long a code stays usable.
const DefaultTTL = 10 * time.Minute

// DefaultMaxResends bounds Resend per slot.
const DefaultMaxResends = 3

// Options configures the service.
type Options struct {
	TTL        time.Duration
	MaxResends int
}

// Service issues and verifies codes.
type Service struct {
	repo        Repository
	sender      Sender
	metrics     *metrics.Recorder
	auditLogger audit.Logger
	ttl         time.Duration
	maxResends  int
	now         func() time.Time
	newCode     func() (string, error)
}

// NewService creates a new OTP service
func NewService(repo Repository, sender Sender, m *metrics.Recorder, auditLogger audit.Logger, opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxResends <= 0 {
		opts.MaxResends = DefaultMaxResends
	}
	return &Service{
		repo:        repo,
		sender:      sender,
		metrics:     m,
		auditLogger: auditLogger,
		ttl:         opts.TTL,
		maxResends:  opts.MaxResends,
		now:         time.Now,
		newCode:     generateCode,
	}
}

// TTL returns the configured code lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// generateCode returns a uniformly distributed zero-padded six-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func validate(tenantID, purpose string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	if purpose == "" {
		return ErrPurposeRequired
	}
	return nil
}

// Generate closes every pending code of the slot and issues a fresh one with
// a zero resend count.
func (s *Service) Generate(ctx context.Context, tenantID string, userID *string, purpose string) (_ *OTP, err error) {
	if err := validate(tenantID, purpose); err != nil {
		return nil, err
	}
	ctx, span := tracing.Start(ctx, "otp", "generate", tracing.TenantID(tenantID), tracing.Purpose(purpose))
	defer func() { tracing.End(span, err) }()

	var rec *OTP
	err = s.repo.WithSlot(ctx, scope.ForTenant(tenantID), purpose, func(ctx context.Context, slot Slot) error {
		var err error
		rec, err = s.issue(ctx, slot, tenantID, userID, purpose, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.issued(ctx, rec, false)
	return rec, nil
}

// Resend replaces the pending code of the slot, carrying the resend count
// forward. When the pending code has reached the limit nothing is written and
// ErrResendExhausted is returned.
func (s *Service) Resend(ctx context.Context, tenantID string, userID *string, purpose string) (_ *OTP, err error) {
	if err := validate(tenantID, purpose); err != nil {
		return nil, err
	}
	ctx, span := tracing.Start(ctx, "otp", "resend", tracing.TenantID(tenantID), tracing.Purpose(purpose))
	defer func() { tracing.End(span, err) }()

	var rec *OTP
	err = s.repo.WithSlot(ctx, scope.ForTenant(tenantID), purpose, func(ctx context.Context, slot Slot) error {
		prev, err := slot.Active(ctx)
		if err != nil {
			return err
		}
		count := 0
		if prev != nil {
			if prev.IsExhausted(s.maxResends) {
				return ErrResendExhausted
			}
			count = prev.ResendCount + 1
			if userID == nil {
				userID = prev.UserID
			}
		}
		rec, err = s.issue(ctx, slot, tenantID, userID, purpose, count)
		return err
	})
	if errors.Is(err, ErrResendExhausted) {
		s.metrics.OTPResendExhausted(ctx, purpose)
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeOTPResendExhausted,
			TenantID: tenantID,
			Resource: purpose,
		})
		slog.WarnContext(ctx, "otp resend limit reached", logger.Component("otp"), logger.TenantID(tenantID), logger.Purpose(purpose))
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.issued(ctx, rec, true)
	return rec, nil
}

func (s *Service) issue(ctx context.Context, slot Slot, tenantID string, userID *string, purpose string, resendCount int) (*OTP, error) {
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := slot.CloseAll(ctx, now); err != nil {
		return nil, fmt.Errorf("close pending otps: %w", err)
	}
	rec := &OTP{
		Owned:       scope.Owned{TenantID: tenantID},
		ID:          id.NewUUIDv7(),
		UserID:      userID,
		Purpose:     purpose,
		Code:        code,
		ExpiresAt:   now.Add(s.ttl),
		ResendCount: resendCount,
		CreatedAt:   now,
	}
	if err := slot.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert otp: %w", err)
	}
	return rec, nil
}

func (s *Service) issued(ctx context.Context, rec *OTP, resend bool) {
	s.metrics.OTPIssued(ctx, rec.Purpose, resend)
	ev := audit.Event{
		Type:     audit.TypeOTPIssued,
		TenantID: rec.TenantID,
		Resource: rec.Purpose,
		Metadata: map[string]any{"otp_id": rec.ID, "resend_count": rec.ResendCount},
	}
	if rec.UserID != nil {
		ev.ActorID = *rec.UserID
	}
	s.auditLogger.Log(ctx, ev)
	slog.InfoContext(ctx, "otp issued",
		logger.Component("otp"),
		logger.TenantID(rec.TenantID),
		logger.Purpose(rec.Purpose),
		logger.OTPID(rec.ID),
	)
}

// Verify checks code against the most recent pending code of the slot. An
// expired code is reported without counting the attempt. A wrong code counts
// the attempt and leaves the code pending. A match closes the code, so a
// second Verify with the same code reports ResultNotFound.
func (s *Service) Verify(ctx context.Context, tenantID, purpose, code string) (Result, *OTP, error) {
	return s.check(ctx, tenantID, nil, purpose, code)
}

// VerifyFor is Verify for a known member. A pending code issued to another
// user is reported as ResultInvalid and stays pending for its owner.
func (s *Service) VerifyFor(ctx context.Context, tenantID, userID, purpose, code string) (Result, *OTP, error) {
	return s.check(ctx, tenantID, &userID, purpose, code)
}

func (s *Service) check(ctx context.Context, tenantID string, userID *string, purpose, code string) (_ Result, _ *OTP, err error) {
	if err := validate(tenantID, purpose); err != nil {
		return "", nil, err
	}
	ctx, span := tracing.Start(ctx, "otp", "verify", tracing.TenantID(tenantID), tracing.Purpose(purpose))
	defer func() { tracing.End(span, err) }()

	sc := scope.ForTenant(tenantID)
	res, rec, err := s.verify(ctx, sc, userID, purpose, code)
	if err != nil {
		return "", nil, err
	}
	s.metrics.OTPVerified(ctx, purpose, string(res))
	slog.InfoContext(ctx, "otp verification",
		logger.Component("otp"),
		logger.TenantID(tenantID),
		logger.Purpose(purpose),
		logger.String("result", string(res)),
	)
	if res == ResultOK {
		ev := audit.Event{Type: audit.TypeOTPVerified, TenantID: tenantID, Resource: purpose}
		if rec.UserID != nil {
			ev.ActorID = *rec.UserID
		}
		s.auditLogger.Log(ctx, ev)
	}
	return res, rec, nil
}

func (s *Service) verify(ctx context.Context, sc scope.Scope, userID *string, purpose, code string) (Result, *OTP, error) {
	rec, err := s.repo.FindActive(ctx, sc, purpose)
	if err != nil {
		return "", nil, err
	}
	if rec == nil {
		return ResultNotFound, nil, nil
	}
	now := s.now()
	if rec.IsExpired(now) {
		return ResultExpired, rec, nil
	}
	attempts, err := s.repo.IncrementAttempts(ctx, sc, rec.ID)
	if err != nil {
		return "", nil, err
	}
	rec.Attempts = attempts
	if userID != nil && rec.UserID != nil && *rec.UserID != *userID {
		slog.WarnContext(ctx, "otp submitted for a different member of the tenant",
			logger.Component("otp"), logger.TenantID(rec.TenantID), logger.UserID(*userID), logger.OTPID(rec.ID))
		return ResultInvalid, rec, nil
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(rec.Code)) != 1 {
		return ResultInvalid, rec, nil
	}
	ok, err := s.repo.MarkVerified(ctx, sc, rec.ID, now)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return ResultNotFound, nil, nil
	}
	rec.VerifiedAt = &now
	return ResultOK, rec, nil
}

// SendEmail hands the code to the email transport. Delivery failures are
// logged by the transport and never surface here.
func (s *Service) SendEmail(ctx context.Context, rec *OTP, to, name, tenantName string) error {
	return s.sender.SendOTPEmail(ctx, EmailMessage{
		To:         to,
		Name:       name,
		TenantName: tenantName,
		Code:       rec.Code,
		ValidFor:   s.ttl,
	})
}

// SendSMS hands the code to the SMS transport.
func (s *Service) SendSMS(ctx context.Context, rec *OTP, mobile string) error {
	return s.sender.SendOTPSMS(ctx, mobile, rec.Code)
}
