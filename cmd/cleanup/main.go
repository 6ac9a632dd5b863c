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


// Command cleanup runs one maintenance sweep: expired sessions are deleted
// and lapsed subscriptions are marked expired.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/background"
	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/observability/logger"
	"github.com/atelierhq/atelier/internal/session"
	"github.com/atelierhq/atelier/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	sessions := session.NewService(postgres.NewSessionRepository(db), cfg.Session.Lifetime, cfg.Session.IdleTimeout)
	m := background.NewMaintenance(sessions, postgres.NewSubscriptionRepository(db), audit.NewSlogLogger(slog.Default()))

	report, err := m.RunOnce(ctx)
	if err != nil {
		slog.Error("maintenance sweep failed", logger.Error(err))
		os.Exit(1)
	}
	fmt.Printf("Deleted %d expired sessions, expired %d subscriptions.\n", report.SessionsDeleted, report.SubscriptionsExpired)
}
