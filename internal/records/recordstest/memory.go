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

// Package recordstest provides in-memory record stores for tests.
package recordstest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/scope"
)

// MemoryStore is an in-process records.Store.
type MemoryStore[T any, PT interface {
	*T
	records.Entity
}] struct {
	mu   sync.RWMutex
	rows []PT
}

func NewMemoryStore[T any, PT interface {
	*T
	records.Entity
}]() *MemoryStore[T, PT] {
	return &MemoryStore[T, PT]{}
}

func (m *MemoryStore[T, PT]) List(_ context.Context, s scope.Scope, limit, offset int) ([]*T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	visible := scope.Filter(s, m.rows)
	if offset >= len(visible) {
		return []*T{}, nil
	}
	visible = visible[offset:]
	if limit > 0 && limit < len(visible) {
		visible = visible[:limit]
	}
	out := make([]*T, len(visible))
	for i, r := range visible {
		out[i] = (*T)(r)
	}
	return out, nil
}

func (m *MemoryStore[T, PT]) Get(_ context.Context, s scope.Scope, recID string) (*T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rows {
		if r.GetID() == recID && s.Allows(r) {
			return (*T)(r), nil
		}
	}
	return nil, records.ErrNotFound
}

func (m *MemoryStore[T, PT]) Create(_ context.Context, s scope.Scope, rec *T) error {
	if err := s.Stamp(PT(rec)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, PT(rec))
	return nil
}

func (m *MemoryStore[T, PT]) Count(_ context.Context, s scope.Scope) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(scope.Filter(s, m.rows)), nil
}

// MemoryCatalog implements records.MasterStore and records.SequenceStore.
type MemoryCatalog struct {
	mu        sync.Mutex
	Master    []*records.MasterRecord
	Stages    []*records.WorkflowStage
	Sequences []*records.NumberSequence
}

func (m *MemoryCatalog) ListCategory(_ context.Context, s scope.Scope, category string) ([]*records.MasterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*records.MasterRecord
	for _, r := range scope.Filter(s, m.Master) {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryCatalog) ListStages(_ context.Context, s scope.Scope) ([]*records.WorkflowStage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := scope.Filter(s, m.Stages)
	slices.SortFunc(out, func(a, b *records.WorkflowStage) int { return a.Position - b.Position })
	return out, nil
}

func (m *MemoryCatalog) List(_ context.Context, s scope.Scope) ([]*records.NumberSequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return scope.Filter(s, m.Sequences), nil
}

func (m *MemoryCatalog) Next(_ context.Context, s scope.Scope, documentType string, now time.Time) (string, error) {
	if _, err := s.RequireTenant(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, seq := range scope.Filter(s, m.Sequences) {
		if seq.DocumentType != documentType {
			continue
		}
		fy := records.FiscalYear(now)
		if seq.ResetYearly && seq.FiscalYear != fy {
			seq.FiscalYear = fy
			seq.Current = 0
		}
		seq.Current++
		seq.UpdatedAt = now
		return seq.Format(seq.Current), nil
	}
	return "", records.ErrNotFound
}
