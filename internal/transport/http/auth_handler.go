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

package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/identity"
	"github.com/atelierhq/atelier/internal/observability/logger"
	"github.com/atelierhq/atelier/internal/otp"
	"github.com/atelierhq/atelier/internal/signup"
	"github.com/atelierhq/atelier/internal/tenant"
	"github.com/atelierhq/atelier/internal/validate"
)

// Signup handles self-service tenant registration
// @Summary Sign up a new workspace
// @Description Create a tenant and its owner, then send a registration code
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body signup.Request true "Business and owner details"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /auth/signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signup.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.signupService.Signup(r.Context(), req)
	if err != nil {
		var fe validate.FieldErrors
		switch {
		case errors.As(err, &fe):
			respondValidation(w, err)
		case errors.Is(err, tenant.ErrSubdomainTaken):
			respondError(w, http.StatusConflict, "subdomain already taken")
		case errors.Is(err, tenant.ErrInvalidSubdomain):
			respondError(w, http.StatusBadRequest, "invalid subdomain")
		case errors.Is(err, tenant.ErrReservedSubdomain):
			respondError(w, http.StatusBadRequest, "subdomain is reserved")
		case errors.Is(err, identity.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet security requirements")
		case errors.Is(err, signup.ErrBootstrapFailed):
			slog.ErrorContext(r.Context(), "signup bootstrap failed", logger.Component("signup"), logger.Error(err))
			respondJSON(w, http.StatusInternalServerError, map[string]string{
				"error":  "workspace setup failed, please contact support",
				"status": "bootstrap_failed",
			})
		default:
			respondInternal(w, r, "signup failed", err)
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"tenant_id":      res.Tenant.ID,
		"subdomain":      res.Tenant.Subdomain,
		"user_id":        res.User.ID,
		"email":          res.User.Email,
		"otp_purpose":    otp.PurposeRegistration,
		"otp_expires_at": res.OTPExpiresAt,
	})
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates a user. Tenant members get a login code instead of a
// session when codes are required.
// @Summary Log in
// @Description Check credentials and start a session, or send a login code to tenant members
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !bindJSON(w, r, &req) {
		return
	}

	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrAccountLocked):
			respondError(w, http.StatusTooManyRequests, "account temporarily locked")
		case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrAccountDisabled):
			respondError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			respondInternal(w, r, "login failed", err)
		}
		return
	}

	if h.loginRequiresOTP && !user.IsSuperAdmin && user.TenantID != nil {
		rec, err := h.signupService.IssueLoginOTP(r.Context(), user)
		if err != nil {
			respondInternal(w, r, "failed to issue login code", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"otp_required":   true,
			"tenant_id":      *user.TenantID,
			"otp_purpose":    otp.PurposeLogin,
			"otp_expires_at": rec.ExpiresAt,
		})
		return
	}

	if err := h.startSession(w, r, user); err != nil {
		respondInternal(w, r, "failed to create session", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":        user.ID,
		"email":          user.Email,
		"tenant_id":      user.TenantID,
		"is_super_admin": user.IsSuperAdmin,
	})
}

// Logout destroys the current session
// @Summary Log out
// @Description Destroy the current session
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := h.getSessionFromCookie(r)
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	sess, err := h.sessionService.Get(r.Context(), sessionID)
	if err == nil {
		h.auditLogger.Log(r.Context(), audit.Event{
			Type:      audit.TypeLogout,
			ActorID:   sess.UserID,
			Resource:  "session",
			IPAddress: getIPAddress(r),
			UserAgent: r.UserAgent(),
		})
		if err := h.sessionService.Destroy(r.Context(), sessionID); err != nil {
			slog.ErrorContext(r.Context(), "failed to destroy session", logger.Error(err))
		}
	}

	h.clearSessionCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out successfully",
	})
}

// GetCurrentUser returns the current authenticated user and bound tenant
// @Summary Current user
// @Description Return the authenticated user and the bound tenant
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /auth/me [get]
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.identityService.GetUser(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	resp := map[string]any{
		"user_id":        user.ID,
		"name":           user.Name,
		"email":          user.Email,
		"email_verified": user.EmailVerified(),
		"is_super_admin": user.IsSuperAdmin,
	}
	if t, ok := tenant.Current(r.Context()); ok {
		resp["tenant"] = t
	}
	respondJSON(w, http.StatusOK, resp)
}

// VerifyOTPRequest names the slot and member a code is checked for.
type VerifyOTPRequest struct {
	TenantID string `json:"tenant_id" validate:"required,uuid"`
	Email    string `json:"email" validate:"required,email"`
	Purpose  string `json:"purpose" validate:"required,oneof=registration login"`
	Code     string `json:"code" validate:"required"`
}

// otpStatus maps a verification result to its HTTP status.
func otpStatus(res otp.Result) int {
	switch res {
	case otp.ResultOK:
		return http.StatusOK
	case otp.ResultNotFound:
		return http.StatusNotFound
	case otp.ResultExpired:
		return http.StatusGone
	default:
		return http.StatusUnauthorized
	}
}

// VerifyOTP checks a one-time code. Registration and login codes start a session.
// @Summary Verify a one-time code
// @Description Verify a registration or login code for a member of the tenant
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body VerifyOTPRequest true "Code and slot"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 410 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /auth/otp/verify [post]
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !bindJSON(w, r, &req) {
		return
	}

	user, res, err := h.signupService.VerifyOTP(r.Context(), req.TenantID, req.Email, req.Purpose, req.Code)
	if err != nil {
		respondInternal(w, r, "failed to verify code", err)
		return
	}
	if res != otp.ResultOK {
		respondJSON(w, otpStatus(res), map[string]string{
			"error":  otpMessage(res),
			"status": string(res),
		})
		return
	}

	if err := h.startSession(w, r, user); err != nil {
		respondInternal(w, r, "failed to create session", err)
		return
	}
	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLoginSuccess,
		TenantID:  req.TenantID,
		ActorID:   user.ID,
		Resource:  "otp",
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{"purpose": req.Purpose},
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"status":         string(res),
		"user_id":        user.ID,
		"tenant_id":      req.TenantID,
		"email_verified": req.Purpose == otp.PurposeRegistration || user.EmailVerified(),
	})
}

func otpMessage(res otp.Result) string {
	switch res {
	case otp.ResultNotFound:
		return "no active code, request a new one"
	case otp.ResultExpired:
		return "code expired, request a new one"
	default:
		return "invalid code"
	}
}

// ResendOTPRequest names the slot a replacement code is issued for.
type ResendOTPRequest struct {
	TenantID string `json:"tenant_id" validate:"required,uuid"`
	Email    string `json:"email" validate:"required,email"`
	Purpose  string `json:"purpose" validate:"required,oneof=registration login"`
}

// ResendOTP issues a replacement code unless the slot's resend limit is reached.
// @Summary Resend a one-time code
// @Description Issue a replacement code for a slot
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body ResendOTPRequest true "Slot"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /auth/otp/resend [post]
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req ResendOTPRequest
	if !bindJSON(w, r, &req) {
		return
	}

	rec, err := h.signupService.ResendOTP(r.Context(), req.TenantID, req.Email, req.Purpose)
	if err != nil {
		switch {
		case errors.Is(err, otp.ErrResendExhausted):
			respondJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":  "resend limit reached",
				"status": "resend_exhausted",
			})
		case errors.Is(err, identity.ErrUserNotFound), errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, tenant.ErrTenantNotFound):
			respondJSON(w, http.StatusNotFound, map[string]string{
				"error":  "account not found",
				"status": string(otp.ResultNotFound),
			})
		default:
			respondInternal(w, r, "failed to resend code", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message":    "code sent",
		"expires_at": rec.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// VerifyEmail confirms an address from an emailed verification link.
// @Summary Verify an email address
// @Description Confirm an address from an emailed verification link
// @Tags Auth
// @Produce json
// @Param token query string true "Signed verification token"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /auth/verify-email [get]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}
	user, err := h.signupService.VerifyEmailToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, signup.ErrInvalidLink) {
			respondError(w, http.StatusBadRequest, "invalid or expired verification link")
			return
		}
		respondInternal(w, r, "failed to verify email", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":        user.ID,
		"email":          user.Email,
		"email_verified": true,
	})
}
