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

// Package otptest provides an in-memory code repository for tests.
package otptest

import (
	"context"
	"sync"
	"time"

	"github.com/atelierhq/atelier/internal/otp"
	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/scope"
)

// MemoryRepository keeps codes in process. A single mutex serializes slot
// access, which is stricter than the per-slot lock of the SQL store.
type MemoryRepository struct {
	mu   sync.Mutex
	rows []*otp.OTP
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// All returns copies of every stored code, oldest first.
func (r *MemoryRepository) All() []otp.OTP {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]otp.OTP, len(r.rows))
	for i, o := range r.rows {
		out[i] = *o
	}
	return out
}

func (r *MemoryRepository) WithSlot(ctx context.Context, s scope.Scope, purpose string, fn func(context.Context, otp.Slot) error) error {
	tenantID, ok := s.TenantID()
	if !ok {
		return scope.ErrNoTenant
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := &memSlot{r: r, tenantID: tenantID, purpose: purpose}
	if err := fn(ctx, slot); err != nil {
		return err
	}
	r.rows = append(r.rows, slot.pending...)
	for _, c := range slot.closes {
		c.o.VerifiedAt = &c.at
	}
	return nil
}

// active must be called with mu held.
func (r *MemoryRepository) active(tenantID, purpose string) *otp.OTP {
	for i := len(r.rows) - 1; i >= 0; i-- {
		o := r.rows[i]
		if o.TenantID == tenantID && o.Purpose == purpose && o.IsPending() {
			return o
		}
	}
	return nil
}

func (r *MemoryRepository) FindActive(_ context.Context, s scope.Scope, purpose string) (*otp.OTP, error) {
	tenantID, ok := s.TenantID()
	if !ok {
		return nil, scope.ErrNoTenant
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.active(tenantID, purpose)
	if o == nil {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryRepository) find(s scope.Scope, otpID string) *otp.OTP {
	for _, o := range r.rows {
		if o.ID == otpID && s.Allows(o) {
			return o
		}
	}
	return nil
}

func (r *MemoryRepository) IncrementAttempts(_ context.Context, s scope.Scope, otpID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.find(s, otpID)
	if o == nil {
		return 0, records.ErrNotFound
	}
	o.Attempts++
	return o.Attempts, nil
}

func (r *MemoryRepository) MarkVerified(_ context.Context, s scope.Scope, otpID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.find(s, otpID)
	if o == nil || !o.IsPending() {
		return false, nil
	}
	o.VerifiedAt = &at
	return true, nil
}

type pendingClose struct {
	o  *otp.OTP
	at time.Time
}

// memSlot buffers writes so a failing fn leaves the repository untouched.
type memSlot struct {
	r        *MemoryRepository
	tenantID string
	purpose  string
	pending  []*otp.OTP
	closes   []pendingClose
}

func (s *memSlot) Active(context.Context) (*otp.OTP, error) {
	if n := len(s.pending); n > 0 && s.pending[n-1].IsPending() {
		cp := *s.pending[n-1]
		return &cp, nil
	}
	o := s.r.active(s.tenantID, s.purpose)
	if o == nil || s.closed(o) {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (s *memSlot) closed(o *otp.OTP) bool {
	for _, c := range s.closes {
		if c.o == o {
			return true
		}
	}
	return false
}

func (s *memSlot) CloseAll(_ context.Context, at time.Time) error {
	for _, o := range s.r.rows {
		if o.TenantID == s.tenantID && o.Purpose == s.purpose && o.IsPending() && !s.closed(o) {
			s.closes = append(s.closes, pendingClose{o: o, at: at})
		}
	}
	for _, o := range s.pending {
		if o.VerifiedAt == nil {
			t := at
			o.VerifiedAt = &t
		}
	}
	return nil
}

func (s *memSlot) Insert(_ context.Context, o *otp.OTP) error {
	cp := *o
	cp.TenantID = s.tenantID
	cp.Purpose = s.purpose
	s.pending = append(s.pending, &cp)
	return nil
}
