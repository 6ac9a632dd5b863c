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
	"context"
	"log/slog"

	"github.com/atelierhq/atelier/internal/observability/logger"
	"github.com/atelierhq/atelier/internal/scope"
	"github.com/atelierhq/atelier/internal/tenant"
)

// bindTenant publishes the principal's tenant into the request context. The
// binding lives in the request's own context, so nothing survives the request.
// A missing tenant is not an error here; the gate and handlers decide.
func (h *Handler) bindTenant(ctx context.Context, p scope.Principal) context.Context {
	if !p.HasTenant() {
		return ctx
	}
	t, err := h.tenantService.GetTenant(ctx, p.TenantID)
	if err != nil {
		slog.DebugContext(ctx, "tenant not bound", logger.TenantID(p.TenantID), logger.Error(err))
		return ctx
	}
	return tenant.WithCurrent(ctx, t)
}
