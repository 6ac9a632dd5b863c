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

// @title Atelier API
// @version 1.0.0
// @description Multi-tenant workspace for garment businesses

// @BasePath /api/v1

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name atelier_session

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/identity"
	"github.com/atelierhq/atelier/internal/observability/logger"
	"github.com/atelierhq/atelier/internal/observability/metrics"
	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/scope"
	"github.com/atelierhq/atelier/internal/session"
	"github.com/atelierhq/atelier/internal/signup"
	"github.com/atelierhq/atelier/internal/tenant"
	"github.com/atelierhq/atelier/internal/validate"
)

// Services bundles the domain services the handlers call.
type Services struct {
	Identity *identity.Service
	Sessions *session.Service
	Tenants  *tenant.Service
	Records  *records.Service
	Signup   *signup.Service
	Gate     *tenant.Gate
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService  *identity.Service
	sessionService   *session.Service
	tenantService    *tenant.Service
	recordsService   *records.Service
	signupService    *signup.Service
	gate             *tenant.Gate
	metrics          *metrics.Recorder
	auditLogger      audit.Logger
	sessionConfig    SessionConfig
	loginRequiresOTP bool
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
}

// ParseSameSite maps a configured SameSite name to its cookie mode.
func ParseSameSite(s string) http.SameSite {
	switch s {
	case "Strict", "strict":
		return http.SameSiteStrictMode
	case "None", "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, m *metrics.Recorder, auditLogger audit.Logger, sessionConfig SessionConfig, loginRequiresOTP bool) *Handler {
	return &Handler{
		identityService:  svc.Identity,
		sessionService:   svc.Sessions,
		tenantService:    svc.Tenants,
		recordsService:   svc.Records,
		signupService:    svc.Signup,
		gate:             svc.Gate,
		metrics:          m,
		auditLogger:      auditLogger,
		sessionConfig:    sessionConfig,
		loginRequiresOTP: loginRequiresOTP,
	}
}

// RouterConfig holds router-level limits.
type RouterConfig struct {
	RequestTimeout time.Duration
	RateLimiter    *RateLimiter
	OTPLimiter     *OTPLimiter
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// Middleware
	r.Use(middleware.RequestID)
	if cfg.RateLimiter != nil {
		r.Use(RateLimitMiddleware(cfg.RateLimiter))
	}
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(metrics.HTTPMiddleware)
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints. The tenant is never taken from headers here either;
		// OTP endpoints name it in the body and are checked against the member.
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Get("/verify-email", h.VerifyEmail)

			r.Group(func(r chi.Router) {
				if cfg.OTPLimiter != nil {
					r.Use(cfg.OTPLimiter.Middleware)
				}
				r.Post("/otp/verify", h.VerifyOTP)
				r.Post("/otp/resend", h.ResendOTP)
			})

			r.With(h.AuthMiddleware).Get("/me", h.GetCurrentUser)
		})

		// Tenant workspace: authenticated, gated, bound to the principal's tenant.
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Use(h.GateMiddleware)
			r.Use(RequireTenant)

			r.Route("/workspace", func(r chi.Router) {
				r.Get("/", h.GetWorkspace)
				r.Put("/settings", h.UpdateSettings)
				r.Post("/onboarding/complete", h.CompleteOnboarding)
			})

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", h.ListCustomers)
				r.Post("/", h.CreateCustomer)
				r.Get("/{id}", h.GetCustomer)
			})
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrders)
				r.Post("/", h.CreateOrder)
				r.Get("/{id}", h.GetOrder)
			})
			r.Route("/workers", func(r chi.Router) {
				r.Get("/", h.ListWorkers)
				r.Post("/", h.CreateWorker)
				r.Get("/{id}", h.GetWorker)
			})

			r.Get("/master/{category}", h.ListMaster)
			r.Get("/workflow/stages", h.ListStages)
			r.Get("/sequences", h.ListSequences)
		})

		// Platform administration.
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Use(RequireSuperAdmin)

			r.Get("/admins", h.ListAdmins)
			r.Post("/admins", h.CreateAdmin)
			r.Post("/admins/{id}/revoke", h.RevokeAdmin)

			r.Get("/tenants", h.ListTenants)
			r.Get("/tenants/{id}", h.GetTenant)
			r.Patch("/tenants/{id}/status", h.UpdateTenantStatus)
			r.Post("/tenants/{id}/bootstrap", h.RetryBootstrap)
			r.Get("/stats", h.PlatformStats)
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "atelier",
	})
}

// Helper functions
func (h *Handler) setSessionCookie(w http.ResponseWriter, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    sess.ID,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   int(h.sessionService.Lifetime().Seconds()),
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// startSession creates a session for u and sets the cookie.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, u *identity.User) error {
	sess, err := h.sessionService.Create(r.Context(), u.ID, getIPAddress(r), r.UserAgent())
	if err != nil {
		return err
	}
	h.setSessionCookie(w, sess)
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// bindJSON decodes the body into dst and runs struct validation. Validation
// failures are written as 400 with per-field messages.
func bindJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decodeJSON(w, r, dst) {
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondValidation(w, err)
		return false
	}
	return true
}

func respondValidation(w http.ResponseWriter, err error) {
	var fe validate.FieldErrors
	if errors.As(err, &fe) {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": fe,
		})
		return
	}
	respondError(w, http.StatusBadRequest, "invalid request")
}

// respondInternal logs err and writes a 500 without leaking details.
func respondInternal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.ErrorContext(r.Context(), msg,
		logger.RequestID(middleware.GetReqID(r.Context())),
		logger.Error(err),
	)
	respondError(w, http.StatusInternalServerError, msg)
}

// pagination reads limit and offset query parameters.
func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// principal returns the request principal; handlers behind AuthMiddleware always have one.
func principal(r *http.Request) scope.Principal {
	p, _ := scope.PrincipalFrom(r.Context())
	return p
}
