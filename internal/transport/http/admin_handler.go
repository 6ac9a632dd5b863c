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
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelierhq/atelier/internal/identity"
	"github.com/atelierhq/atelier/internal/tenant"
)

// Platform administration handlers. Every route here sits behind
// RequireSuperAdmin; cross-tenant reads go through the unscoped escape hatch
// inside the tenant service.

// CreateAdminRequest represents a new super-admin account
type CreateAdminRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// ListAdmins lists platform administrators.
// @Summary List administrators
// @Description List all super-admin accounts (Super Admin Only)
// @Tags Admin
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /admin/admins [get]
func (h *Handler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.identityService.ListSuperAdmins(r.Context())
	if err != nil {
		respondInternal(w, r, "failed to list admins", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"admins": admins})
}

// CreateAdmin creates a super-admin account.
// @Summary Create administrator
// @Description Create a platform super-admin (Super Admin Only)
// @Tags Admin
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body CreateAdminRequest true "Administrator"
// @Success 201 {object} identity.User
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /admin/admins [post]
func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req CreateAdminRequest
	if !bindJSON(w, r, &req) {
		return
	}
	u, err := h.identityService.CreateSuperAdmin(r.Context(), GetUserID(r.Context()), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet security requirements")
		default:
			respondInternal(w, r, "failed to create admin", err)
		}
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

// RevokeAdmin clears the super-admin flags of another account.
// @Summary Revoke administrator
// @Description Remove super-admin rights from another account (Super Admin Only)
// @Tags Admin
// @Produce json
// @Security CookieAuth
// @Param id path string true "User ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /admin/admins/{id}/revoke [post]
func (h *Handler) RevokeAdmin(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")
	actorID := GetUserID(r.Context())
	if err := h.identityService.RevokeSuperAdmin(r.Context(), actorID, targetID); err != nil {
		switch {
		case errors.Is(err, identity.ErrSelfRevoke):
			respondError(w, http.StatusBadRequest, "cannot revoke yourself")
		case errors.Is(err, identity.ErrNotSuperAdmin):
			respondError(w, http.StatusBadRequest, "user is not a super admin")
		case errors.Is(err, identity.ErrUserNotFound):
			respondError(w, http.StatusNotFound, "user not found")
		default:
			respondInternal(w, r, "failed to revoke admin", err)
		}
		return
	}
	if err := h.sessionService.DestroyUser(r.Context(), targetID); err != nil {
		respondInternal(w, r, "failed to end admin sessions", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "admin revoked"})
}

// ListTenants lists every tenant on the platform.
// @Summary List Tenants
// @Description List all platform tenants (Super Admin Only)
// @Tags Admin
// @Produce json
// @Security CookieAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /admin/tenants [get]
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	tenants, err := h.tenantService.ListTenants(r.Context(), limit, offset)
	if err != nil {
		respondInternal(w, r, "failed to list tenants", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

// GetTenant returns one tenant with usage against its plan limits.
// @Summary Get Tenant
// @Description Tenant details with usage against plan limits (Super Admin Only)
// @Tags Admin
// @Produce json
// @Security CookieAuth
// @Param id path string true "Tenant ID"
// @Success 200 {object} tenant.Overview
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /admin/tenants/{id} [get]
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	ov, err := h.tenantService.Overview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		respondInternal(w, r, "failed to load tenant", err)
		return
	}
	respondJSON(w, http.StatusOK, ov)
}

// UpdateTenantStatusRequest carries the new tenant status
type UpdateTenantStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active trial suspended expired"`
}

// UpdateTenantStatus writes the status directly. The gate applies it on the
// tenant's next request.
// @Summary Update tenant status
// @Description Set a tenant to trial, active, suspended or cancelled (Super Admin Only)
// @Tags Admin
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param id path string true "Tenant ID"
// @Param request body UpdateTenantStatusRequest true "New status"
// @Success 200 {object} tenant.Tenant
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /admin/tenants/{id}/status [patch]
func (h *Handler) UpdateTenantStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateTenantStatusRequest
	if !bindJSON(w, r, &req) {
		return
	}
	t, err := h.tenantService.UpdateStatus(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrTenantNotFound):
			respondError(w, http.StatusNotFound, "tenant not found")
		case errors.Is(err, tenant.ErrInvalidStatus):
			respondError(w, http.StatusBadRequest, "invalid tenant status")
		default:
			respondInternal(w, r, "failed to update tenant status", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// RetryBootstrap reruns workspace provisioning for a tenant whose signup failed.
// @Summary Retry tenant bootstrap
// @Description Rerun workspace provisioning for a tenant (Super Admin Only)
// @Tags Admin
// @Produce json
// @Security CookieAuth
// @Param id path string true "Tenant ID"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /admin/tenants/{id}/bootstrap [post]
func (h *Handler) RetryBootstrap(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")
	if err := h.tenantService.Bootstrap(r.Context(), GetUserID(r.Context()), tenantID); err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		respondInternal(w, r, "bootstrap failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "tenant bootstrapped", "tenant_id": tenantID})
}

// PlatformStats aggregates counts across all tenants.
// @Summary Platform statistics
// @Description Counts across all tenants (Super Admin Only)
// @Tags Admin
// @Produce json
// @Security CookieAuth
// @Success 200 {object} tenant.Stats
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /admin/stats [get]
func (h *Handler) PlatformStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.tenantService.Stats(r.Context())
	if err != nil {
		respondInternal(w, r, "failed to load stats", err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}
