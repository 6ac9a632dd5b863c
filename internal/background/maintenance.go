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

// Package background runs the periodic maintenance sweep.
package background

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/atelierhq/atelier/internal/audit"
	"github.com/atelierhq/atelier/internal/observability/logger"
)

// SessionCleaner removes expired sessions.
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// SubscriptionExpirer moves lapsed active subscriptions to expired.
type SubscriptionExpirer interface {
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}

// Report is the outcome of one sweep.
type Report struct {
	SessionsDeleted      int64
	SubscriptionsExpired int64
}

// Maintenance is the sweep itself. OTP rows are kept; they are closed, never deleted.
type Maintenance struct {
	sessions    SessionCleaner
	subs        SubscriptionExpirer
	auditLogger audit.Logger
	now         func() time.Time
}

func NewMaintenance(sessions SessionCleaner, subs SubscriptionExpirer, auditLogger audit.Logger) *Maintenance {
	return &Maintenance{sessions: sessions, subs: subs, auditLogger: auditLogger, now: time.Now}
}

// RunOnce runs every step, continuing past failures, and returns their joined errors.
func (m *Maintenance) RunOnce(ctx context.Context) (Report, error) {
	var (
		rep  Report
		errs []error
	)

	n, err := m.sessions.CleanupExpired(ctx)
	if err != nil {
		errs = append(errs, err)
		slog.ErrorContext(ctx, "session cleanup failed", logger.Component("maintenance"), logger.Error(err))
	} else {
		rep.SessionsDeleted = n
	}

	n, err = m.subs.ExpireLapsed(ctx, m.now())
	if err != nil {
		errs = append(errs, err)
		slog.ErrorContext(ctx, "subscription expiry failed", logger.Component("maintenance"), logger.Error(err))
	} else {
		rep.SubscriptionsExpired = n
		if n > 0 {
			m.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeSubscriptionExpired,
				ActorID:  "system",
				Metadata: map[string]any{"count": n},
			})
		}
	}

	slog.InfoContext(ctx, "maintenance sweep finished",
		logger.Component("maintenance"),
		slog.Int64("sessions_deleted", rep.SessionsDeleted),
		slog.Int64("subscriptions_expired", rep.SubscriptionsExpired),
	)
	return rep, errors.Join(errs...)
}
