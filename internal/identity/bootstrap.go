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

package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atelierhq/atelier/internal/observability/logger"
)

const actorSystemBootstrap = "system:bootstrap"

// BootstrapConfig names the first super-admin account.
type BootstrapConfig struct {
	Email    string
	Password string
	Name     string
}

// BootstrapService creates the first platform super-admin.
type BootstrapService struct {
	identityService *Service
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(identityService *Service) *BootstrapService {
	return &BootstrapService{identityService: identityService}
}

// Bootstrap creates the configured super-admin unless one already exists.
// It does nothing when no email is configured.
func (s *BootstrapService) Bootstrap(ctx context.Context, cfg BootstrapConfig) (*User, error) {
	if cfg.Email == "" {
		return nil, nil
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("bootstrap admin password is required")
	}

	admins, err := s.identityService.ListSuperAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing super admins: %w", err)
	}
	if len(admins) > 0 {
		slog.InfoContext(ctx, "super admin already present, skipping bootstrap", logger.Component("bootstrap"))
		return nil, nil
	}

	u, err := s.identityService.CreateSuperAdmin(ctx, actorSystemBootstrap, cfg.Name, cfg.Email, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap super admin: %w", err)
	}
	slog.InfoContext(ctx, "bootstrapped initial super admin", logger.Component("bootstrap"), logger.UserID(u.ID), logger.Email(u.Email))
	return u, nil
}
