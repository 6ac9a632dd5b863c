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

	"github.com/atelierhq/atelier/internal/scope"
)

type contextKey string

const sessionIDKey contextKey = "session_id"

// GetUserID retrieves the authenticated User ID from context.
func GetUserID(ctx context.Context) string {
	if p, ok := scope.PrincipalFrom(ctx); ok {
		return p.UserID
	}
	return ""
}

// GetTenantID retrieves the Tenant ID of the principal from context.
// It is empty for super-admins.
func GetTenantID(ctx context.Context) string {
	if p, ok := scope.PrincipalFrom(ctx); ok && p.HasTenant() {
		return p.TenantID
	}
	return ""
}

// GetSessionID retrieves the Session ID from context.
func GetSessionID(ctx context.Context) string {
	if val, ok := ctx.Value(sessionIDKey).(string); ok {
		return val
	}
	return ""
}

func withSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}
