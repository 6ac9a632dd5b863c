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

package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/atelierhq/atelier/internal/observability/logger"
)

// DefaultSchedule runs the sweep every fifteen minutes.
const DefaultSchedule = "*/15 * * * *"

// Scheduler triggers Maintenance on a standard five-field cron schedule.
type Scheduler struct {
	m        *Maintenance
	schedule string
	timeout  time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewScheduler(m *Maintenance, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{m: m, schedule: schedule, timeout: 5 * time.Minute}
}

// Start registers the job and starts the cron loop. Overlapping runs are skipped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, s.run); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.running = true
	slog.Info("maintenance scheduler started", logger.Component("maintenance"), logger.String("schedule", s.schedule))
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, _ = s.m.RunOnce(ctx)
}

// Stop stops the loop and waits for a running sweep until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.running = false
	slog.Info("maintenance scheduler stopped", logger.Component("maintenance"))
}
