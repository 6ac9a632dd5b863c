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

	"github.com/go-chi/chi/v5/middleware"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/identity"
	"github.com/atelierhq/atelier/internal/observability/logger"
	"github.com/atelierhq/atelier/internal/scope"
	"github.com/atelierhq/atelier/internal/session"
	"github.com/atelierhq/atelier/internal/tenant"
)

// Tenant context rules:
// 1. The tenant of a request comes only from the authenticated user's row.
// 2. Headers, query parameters and bodies never select the data scope.
// 3. Super-admins carry no tenant and reach other tenants only through
//    explicitly unscoped admin operations.

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthMiddleware resolves the session cookie to a principal and binds the
// request's tenant. The tenant always comes from the user row.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := h.getSessionFromCookie(r)
		if sessionID == "" {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		sess, err := h.sessionService.Get(r.Context(), sessionID)
		if err != nil {
			if !errors.Is(err, session.ErrSessionNotFound) && !errors.Is(err, session.ErrSessionExpired) {
				slog.ErrorContext(r.Context(), "failed to load session", logger.Error(err))
			}
			h.clearSessionCookie(w)
			respondError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		user, err := h.identityService.GetUser(r.Context(), sess.UserID)
		if err != nil || !user.IsActive {
			if err != nil && !errors.Is(err, identity.ErrUserNotFound) {
				slog.ErrorContext(r.Context(), "failed to load session user", logger.Error(err))
			}
			_ = h.sessionService.Destroy(r.Context(), sess.ID)
			h.clearSessionCookie(w)
			respondError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		p := user.Principal()

		// The data scope is derived from the session user only.
		if r.Header.Get("X-Tenant-ID") != "" {
			slog.WarnContext(r.Context(), "tenant header spoofing attempt detected on authenticated route",
				logger.UserID(user.ID),
				logger.TenantID(p.TenantID),
			)
			h.auditLogger.Log(r.Context(), audit.Event{
				Type:      audit.TypeCrossTenantAttempted,
				TenantID:  p.TenantID,
				ActorID:   user.ID,
				Resource:  r.URL.Path,
				IPAddress: getIPAddress(r),
				UserAgent: r.UserAgent(),
				Metadata:  map[string]any{"header_tenant": r.Header.Get("X-Tenant-ID")},
			})
			respondError(w, http.StatusBadRequest, "X-Tenant-ID header is not allowed on authenticated requests; tenant is derived from session")
			return
		}

		ctx := scope.WithPrincipal(r.Context(), p)
		ctx = withSessionID(ctx, sess.ID)
		ctx = h.bindTenant(ctx, p)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GateMiddleware denies tenant members whose tenant or subscription is not
// in good standing. Super-admins and unauthenticated requests pass.
func (h *Handler) GateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, t, err := h.gate.Check(r.Context())
		if err != nil {
			respondInternal(w, r, "failed to check subscription", err)
			return
		}
		if !d.Allowed {
			h.metrics.GateDenied(r.Context(), d.Reason)
			slog.InfoContext(r.Context(), "request denied by subscription gate",
				logger.UserID(GetUserID(r.Context())),
				logger.TenantID(GetTenantID(r.Context())),
				logger.Reason(d.Reason),
			)
			respondJSON(w, http.StatusForbidden, map[string]string{
				"error":  gateMessage(d.Reason),
				"status": d.Reason,
			})
			return
		}
		ctx := r.Context()
		if t != nil {
			ctx = tenant.WithCurrent(ctx, t)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func gateMessage(reason string) string {
	switch reason {
	case tenant.ReasonNoOrganization:
		return "no organization"
	case tenant.ReasonNoActiveSubscription:
		return "no active subscription"
	case tenant.ReasonExpired:
		return "subscription expired"
	case tenant.ReasonTrialEnded:
		return "trial ended"
	default:
		return "account " + reason
	}
}

// RequireTenant enforces that the principal acts for a tenant.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetTenantID(r.Context()) == "" {
			respondError(w, http.StatusForbidden, "tenant membership required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSuperAdmin enforces a platform administrator principal.
func RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := scope.PrincipalFrom(r.Context())
		if !ok || !p.SuperAdmin {
			respondError(w, http.StatusForbidden, "platform admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
