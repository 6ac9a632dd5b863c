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

package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/atelierhq/atelier/internal/observability/logger"
)

// ErrQueueFull is returned when the dispatcher cannot accept more jobs.
var ErrQueueFull = errors.New("notification queue full")

// ErrDispatcherClosed is returned after Close.
var ErrDispatcherClosed = errors.New("notification dispatcher closed")

// Job is one delivery. Jobs run detached from the request context.
type Job struct {
	Kind string
	Run  func(ctx context.Context) error
}

// Dispatcher runs delivery jobs on a fixed pool of workers so a slow mail or
// SMS provider never blocks a request. Failures are logged and dropped.
type Dispatcher struct {
	jobs    chan Job
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(workers, queue int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if queue <= 0 {
		queue = 256
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &Dispatcher{jobs: make(chan Job, queue), timeout: timeout}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.run(job)
	}
}

func (d *Dispatcher) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notification job panicked", logger.Component("notify"), logger.String("kind", job.Kind), slog.Any("panic", r))
		}
	}()
	if err := job.Run(ctx); err != nil {
		slog.Error("notification delivery failed", logger.Component("notify"), logger.String("kind", job.Kind), logger.Error(err))
	}
}

// Enqueue schedules job without blocking.
func (d *Dispatcher) Enqueue(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
