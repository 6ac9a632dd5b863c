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

// Package signup runs self-service registration: it creates the tenant and
// its first user, provisions the workspace and sends the verification code
// and link. It also owns the code and link checks that follow.
package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/atelierhq/atelier/internal/identity"
	"github.com/atelierhq/atelier/internal/notify"
	"github.com/atelierhq/atelier/internal/observability/logger"
	"github.com/atelierhq/atelier/internal/observability/metrics"
	"github.com/atelierhq/atelier/internal/observability/tracing"
	"github.com/atelierhq/atelier/internal/otp"
	"github.com/atelierhq/atelier/internal/tenant"
	"github.com/atelierhq/atelier/internal/validate"
)

// ErrBootstrapFailed means the tenant and user exist but the workspace could
// not be provisioned. The gate keeps the tenant closed until bootstrap is retried.
var ErrBootstrapFailed = errors.New("tenant bootstrap failed")

// Tenants is the part of the tenant service signup needs.
type Tenants interface {
	SubdomainAvailable(ctx context.Context, subdomain string) (bool, error)
	CreateTenant(ctx context.Context, name, subdomain, email string) (*tenant.Tenant, error)
	Bootstrap(ctx context.Context, actorID, tenantID string) error
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
}

// Users is the part of the identity service signup needs.
type Users interface {
	EmailAvailable(ctx context.Context, email string) (bool, error)
	Register(ctx context.Context, in identity.RegisterInput) (*identity.User, error)
	GetUser(ctx context.Context, id string) (*identity.User, error)
	GetByEmail(ctx context.Context, email string) (*identity.User, error)
	MarkEmailVerified(ctx context.Context, userID string) error
}

// LinkSender delivers the account verification email.
type LinkSender interface {
	SendVerificationLink(ctx context.Context, v notify.VerificationLink) error
}

// Request is the signup payload.
type Request struct {
	BusinessName string `json:"business_name" validate:"required,min=2,max=120"`
	Subdomain    string `json:"subdomain" validate:"required,min=3,max=63"`
	Name         string `json:"name" validate:"required,max=120"`
	Email        string `json:"email" validate:"required,email,max=254"`
	Mobile       string `json:"mobile,omitempty" validate:"omitempty,e164"`
	Password     string `json:"password" validate:"required,min=8,max=128"`
}

// Result is what a completed signup returns.
type Result struct {
	Tenant       *tenant.Tenant
	User         *identity.User
	OTPExpiresAt time.Time
}

// Service runs signup and account verification.
type Service struct {
	tenants       Tenants
	users         Users
	codes         *otp.Service
	links         LinkSender
	signer        *LinkSigner
	metrics       *metrics.Recorder
	publicBaseURL string
}

func NewService(tenants Tenants, users Users, codes *otp.Service, links LinkSender, signer *LinkSigner, m *metrics.Recorder, publicBaseURL string) *Service {
	return &Service{
		tenants:       tenants,
		users:         users,
		codes:         codes,
		links:         links,
		signer:        signer,
		metrics:       m,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Signup validates req, then creates the tenant and its admin user, bootstraps
// the workspace and sends the registration code and verification link.
// Nothing is written when validation fails.
func (s *Service) Signup(ctx context.Context, req Request) (_ *Result, err error) {
	ctx, span := tracing.Start(ctx, "signup", "signup")
	defer func() { tracing.End(span, err) }()

	if err := s.check(ctx, &req); err != nil {
		return nil, err
	}

	t, err := s.tenants.CreateTenant(ctx, req.BusinessName, req.Subdomain, req.Email)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Register(ctx, identity.RegisterInput{
		TenantID: t.ID,
		Name:     req.Name,
		Email:    req.Email,
		Mobile:   req.Mobile,
		Password: req.Password,
	})
	if err != nil {
		slog.ErrorContext(ctx, "signup left a tenant without users", logger.Component("signup"), logger.TenantID(t.ID), logger.Error(err))
		return nil, err
	}

	if err := s.tenants.Bootstrap(ctx, u.ID, t.ID); err != nil {
		return &Result{Tenant: t, User: u}, fmt.Errorf("%w: %v", ErrBootstrapFailed, err)
	}

	res := &Result{Tenant: t, User: u}
	rec, err := s.sendCode(ctx, t, u, otp.PurposeRegistration, false)
	if err != nil {
		return nil, err
	}
	res.OTPExpiresAt = rec.ExpiresAt
	s.sendLink(ctx, t, u)

	s.metrics.SignupCompleted(ctx)
	slog.InfoContext(ctx, "signup completed",
		logger.Component("signup"),
		logger.TenantID(t.ID),
		logger.Subdomain(t.Subdomain),
		logger.UserID(u.ID),
	)
	return res, nil
}

func (s *Service) check(ctx context.Context, req *Request) error {
	req.BusinessName = strings.TrimSpace(req.BusinessName)
	req.Subdomain = strings.ToLower(strings.TrimSpace(req.Subdomain))
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Mobile = strings.TrimSpace(req.Mobile)

	if err := validate.Struct(req); err != nil {
		return err
	}
	free, err := s.tenants.SubdomainAvailable(ctx, req.Subdomain)
	if err != nil {
		return err
	}
	if !free {
		return tenant.ErrSubdomainTaken
	}
	free, err = s.users.EmailAvailable(ctx, req.Email)
	if err != nil {
		return err
	}
	if !free {
		return identity.ErrUserAlreadyExists
	}
	return nil
}

// sendCode issues (or resends) a code for u and hands it to the transports.
// Delivery errors are logged only.
func (s *Service) sendCode(ctx context.Context, t *tenant.Tenant, u *identity.User, purpose string, resend bool) (*otp.OTP, error) {
	var (
		rec *otp.OTP
		err error
	)
	if resend {
		rec, err = s.codes.Resend(ctx, t.ID, &u.ID, purpose)
	} else {
		rec, err = s.codes.Generate(ctx, t.ID, &u.ID, purpose)
	}
	if err != nil {
		return nil, err
	}
	if err := s.codes.SendEmail(ctx, rec, u.Email, u.Name, t.Name); err != nil {
		slog.WarnContext(ctx, "otp email not queued", logger.Component("signup"), logger.TenantID(t.ID), logger.Error(err))
	}
	if u.Mobile != "" {
		if err := s.codes.SendSMS(ctx, rec, u.Mobile); err != nil {
			slog.WarnContext(ctx, "otp sms not queued", logger.Component("signup"), logger.TenantID(t.ID), logger.Error(err))
		}
	}
	return rec, nil
}

func (s *Service) sendLink(ctx context.Context, t *tenant.Tenant, u *identity.User) {
	token, err := s.signer.Sign(u.ID, t.ID)
	if err != nil {
		slog.ErrorContext(ctx, "verification link not signed", logger.Component("signup"), logger.Error(err))
		return
	}
	err = s.links.SendVerificationLink(ctx, notify.VerificationLink{
		To:         u.Email,
		Name:       u.Name,
		TenantName: t.Name,
		URL:        s.publicBaseURL + "/api/v1/auth/verify-email?token=" + url.QueryEscape(token),
		ValidFor:   s.signer.TTL(),
	})
	if err != nil {
		slog.WarnContext(ctx, "verification link not queued", logger.Component("signup"), logger.TenantID(t.ID), logger.Error(err))
	}
}

// member returns the user with email if it belongs to tenantID. Any mismatch
// is reported as not found so callers cannot enumerate other tenants.
func (s *Service) member(ctx context.Context, tenantID, email string) (*identity.User, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if u.TenantID == nil || *u.TenantID != tenantID {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

// VerifyOTP checks a code for the member email of tenantID. A registration
// code also marks the email verified. The user is returned only on ResultOK.
func (s *Service) VerifyOTP(ctx context.Context, tenantID, email, purpose, code string) (*identity.User, otp.Result, error) {
	u, err := s.member(ctx, tenantID, email)
	if errors.Is(err, identity.ErrUserNotFound) || errors.Is(err, identity.ErrInvalidEmail) {
		return nil, otp.ResultNotFound, nil
	}
	if err != nil {
		return nil, "", err
	}

	res, _, err := s.codes.VerifyFor(ctx, tenantID, u.ID, purpose, code)
	if err != nil || res != otp.ResultOK {
		return nil, res, err
	}
	if purpose == otp.PurposeRegistration {
		if err := s.users.MarkEmailVerified(ctx, u.ID); err != nil {
			return nil, "", err
		}
	}
	return u, otp.ResultOK, nil
}

// ResendOTP issues a replacement code for the member email of tenantID.
func (s *Service) ResendOTP(ctx context.Context, tenantID, email, purpose string) (*otp.OTP, error) {
	u, err := s.member(ctx, tenantID, email)
	if err != nil {
		return nil, err
	}
	t, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.sendCode(ctx, t, u, purpose, true)
}

// IssueLoginOTP sends a login code to a tenant member who passed the password check.
func (s *Service) IssueLoginOTP(ctx context.Context, u *identity.User) (*otp.OTP, error) {
	if u.TenantID == nil {
		return nil, identity.ErrUserNotFound
	}
	t, err := s.tenants.GetTenant(ctx, *u.TenantID)
	if err != nil {
		return nil, err
	}
	return s.sendCode(ctx, t, u, otp.PurposeLogin, false)
}

// VerifyEmailToken marks the email of the user named by a verification link as verified.
func (s *Service) VerifyEmailToken(ctx context.Context, token string) (*identity.User, error) {
	userID, tenantID, err := s.signer.Parse(token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, ErrInvalidLink
	}
	if err != nil {
		return nil, err
	}
	if u.TenantID == nil || *u.TenantID != tenantID {
		return nil, ErrInvalidLink
	}
	if err := s.users.MarkEmailVerified(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}
