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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/scope"
	"github.com/atelierhq/atelier/internal/tenant"
	"github.com/atelierhq/atelier/internal/validate"
)

// GetWorkspace returns the caller's tenant, settings and subscription.
// @Summary Get workspace
// @Description The caller's tenant with settings and subscription
// @Tags Workspace
// @Produce json
// @Security CookieAuth
// @Success 200 {object} tenant.Workspace
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /workspace [get]
func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := h.tenantService.Workspace(r.Context())
	if err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

// UpdateSettings changes the caller's workspace settings.
// @Summary Update workspace settings
// @Description Change settings of the caller's tenant
// @Tags Workspace
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body tenant.SettingsUpdate true "Settings"
// @Success 200 {object} tenant.Setting
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /workspace/settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req tenant.SettingsUpdate
	if !bindJSON(w, r, &req) {
		return
	}
	st, err := h.tenantService.UpdateSettings(r.Context(), GetUserID(r.Context()), req)
	if err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// CompleteOnboarding marks the caller's tenant as onboarded.
// @Summary Complete onboarding
// @Description Mark the caller's tenant as onboarded
// @Tags Workspace
// @Produce json
// @Security CookieAuth
// @Success 200 {object} tenant.Tenant
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /workspace/onboarding/complete [post]
func (h *Handler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenantService.CompleteOnboarding(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// CustomerRequest is the writable part of a customer.
type CustomerRequest struct {
	Name   string `json:"name" validate:"required,max=120"`
	Mobile string `json:"mobile" validate:"omitempty,max=20"`
	Email  string `json:"email" validate:"omitempty,email"`
	City   string `json:"city" validate:"omitempty,max=80"`
}

// ListCustomers lists customers of the caller's tenant.
// @Summary List customers
// @Description Customers of the caller's tenant
// @Tags Records
// @Produce json
// @Security CookieAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /customers [get]
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	list, err := h.recordsService.ListCustomers(r.Context(), limit, offset)
	if err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"customers": list})
}

// GetCustomer returns one customer of the caller's tenant.
// @Summary Get customer
// @Description One customer of the caller's tenant
// @Tags Records
// @Produce json
// @Security CookieAuth
// @Param id path string true "Customer ID"
// @Success 200 {object} records.Customer
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /customers/{id} [get]
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.recordsService.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// CreateCustomer stores a customer in the caller's tenant. The owner is
// stamped from the session, never from the body.
// @Summary Create customer
// @Description Create a customer in the caller's tenant
// @Tags Records
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body CustomerRequest true "Customer"
// @Success 201 {object} records.Customer
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /customers [post]
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if !bindJSON(w, r, &req) {
		return
	}
	c := &records.Customer{Name: req.Name, Mobile: req.Mobile, Email: req.Email, City: req.City}
	if err := h.recordsService.CreateCustomer(r.Context(), c); err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// OrderRequest is the writable part of an order.
type OrderRequest struct {
	CustomerID string          `json:"customer_id" validate:"required,uuid"`
	ItemType   string          `json:"item_type" validate:"required,max=80"`
	Priority   string          `json:"priority" validate:"omitempty,oneof=Low Normal High Urgent"`
	DueDate    *time.Time      `json:"due_date"`
	Amount     decimal.Decimal `json:"amount"`
	Notes      string          `json:"notes" validate:"omitempty,max=2000"`
}

// ListOrders handles listing orders
// @Summary List orders
// @Description Orders of the caller's tenant
// @Tags Records
// @Produce json
// @Security CookieAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /orders [get]
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	list, err := h.recordsService.ListOrders(r.Context(), limit, offset)
	if err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"orders": list})
}

// GetOrder returns one order of the caller's tenant.
// @Summary Get order
// @Description One order of the caller's tenant
// @Tags Records
// @Produce json
// @Security CookieAuth
// @Param id path string true "Order ID"
// @Success 200 {object} records.Order
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /orders/{id} [get]
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.recordsService.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// CreateOrder stores an order for a customer of the caller's tenant.
// @Summary Create order
// @Description Create an order for a customer of the caller's tenant
// @Tags Records
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body OrderRequest true "Order"
// @Success 201 {object} records.Order
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /orders [post]
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !bindJSON(w, r, &req) {
		return
	}
	o := &records.Order{
		CustomerID: req.CustomerID,
		ItemType:   req.ItemType,
		Priority:   req.Priority,
		DueDate:    req.DueDate,
		Amount:     req.Amount,
		Notes:      req.Notes,
	}
	if err := h.recordsService.CreateOrder(r.Context(), o); err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

// WorkerRequest is the writable part of a worker.
type WorkerRequest struct {
	Name   string `json:"name" validate:"required,max=120"`
	Mobile string `json:"mobile" validate:"omitempty,max=20"`
	Skill  string `json:"skill" validate:"omitempty,max=80"`
}

// ListWorkers handles listing workers
// @Summary List workers
// @Description Workers of the caller's tenant
// @Tags Records
// @Produce json
// @Security CookieAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /workers [get]
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	list, err := h.recordsService.ListWorkers(r.Context(), limit, offset)
	if err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"workers": list})
}

// GetWorker returns one worker.
// @Summary Get worker
// @Description One worker of the caller's tenant
// @Tags Records
// @Produce json
// @Security CookieAuth
// @Param id path string true "Worker ID"
// @Success 200 {object} records.Worker
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /workers/{id} [get]
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	wk, err := h.recordsService.GetWorker(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, wk)
}

// CreateWorker stores a worker in the caller's tenant.
// @Summary Create worker
// @Description Create a worker in the caller's tenant
// @Tags Records
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body WorkerRequest true "Worker"
// @Success 201 {object} records.Worker
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /workers [post]
func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req WorkerRequest
	if !bindJSON(w, r, &req) {
		return
	}
	wk := &records.Worker{Name: req.Name, Mobile: req.Mobile, Skill: req.Skill}
	if err := h.recordsService.CreateWorker(r.Context(), wk); err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, wk)
}

// ListMaster lists one master data category of the caller's tenant.
// @Summary List master data
// @Description One master data category of the caller's tenant
// @Tags Records
// @Produce json
// @Security CookieAuth
// @Param category path string true "Category"
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /master/{category} [get]
func (h *Handler) ListMaster(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	list, err := h.recordsService.Master(r.Context(), category)
	if err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"category": category, "items": list})
}

// ListStages lists the workflow stages of the caller's tenant in order.
// @Summary List workflow stages
// @Description Workflow stages of the caller's tenant
// @Tags Records
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /workflow/stages [get]
func (h *Handler) ListStages(w http.ResponseWriter, r *http.Request) {
	list, err := h.recordsService.Stages(r.Context())
	if err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"stages": list})
}

// ListSequences lists document number sequences with their current values.
// @Summary List number sequences
// @Description Document numbering sequences of the caller's tenant
// @Tags Records
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /sequences [get]
func (h *Handler) ListSequences(w http.ResponseWriter, r *http.Request) {
	list, err := h.recordsService.Sequences(r.Context())
	if err != nil {
		h.respondRecordError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sequences": list})
}

// respondRecordError maps scoped data access errors. Another tenant's record
// is indistinguishable from a missing one.
func (h *Handler) respondRecordError(w http.ResponseWriter, r *http.Request, err error) {
	var fe validate.FieldErrors
	switch {
	case errors.As(err, &fe):
		respondValidation(w, err)
	case errors.Is(err, records.ErrNotFound), errors.Is(err, tenant.ErrSettingsNotFound), errors.Is(err, tenant.ErrTenantNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, records.ErrUnknownCategory):
		respondError(w, http.StatusNotFound, "unknown master data category")
	case errors.Is(err, records.ErrInvalidReference):
		respondError(w, http.StatusUnprocessableEntity, "referenced record does not exist")
	case errors.Is(err, records.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scope.ErrCrossTenantWrite), errors.Is(err, scope.ErrNoTenant), errors.Is(err, scope.ErrNoScope):
		respondError(w, http.StatusForbidden, "tenant membership required")
	default:
		respondInternal(w, r, "request failed", err)
	}
}
