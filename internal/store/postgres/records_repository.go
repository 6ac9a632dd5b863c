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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/scope"
)

// NewCustomerStore returns the scoped customers table.
func NewCustomerStore(db *DB) *ScopedTable[records.Customer, *records.Customer] {
	return NewScopedTable[records.Customer](db, "customers", "created_at DESC, id DESC",
		[]string{"tenant_id", "id", "code", "name", "mobile", "email", "city", "created_at"},
		func(c *records.Customer) []any {
			return []any{c.TenantID, c.ID, c.Code, c.Name, c.Mobile, c.Email, c.City, c.CreatedAt}
		})
}

// NewOrderStore returns the scoped orders table.
func NewOrderStore(db *DB) *ScopedTable[records.Order, *records.Order] {
	return NewScopedTable[records.Order](db, "orders", "created_at DESC, id DESC",
		[]string{"tenant_id", "id", "number", "customer_id", "item_type", "status", "priority", "due_date", "amount", "notes", "created_at"},
		func(o *records.Order) []any {
			return []any{o.TenantID, o.ID, o.Number, o.CustomerID, o.ItemType, o.Status, o.Priority, o.DueDate, o.Amount, o.Notes, o.CreatedAt}
		})
}

// NewWorkerStore returns the scoped workers table.
func NewWorkerStore(db *DB) *ScopedTable[records.Worker, *records.Worker] {
	return NewScopedTable[records.Worker](db, "workers", "created_at DESC, id DESC",
		[]string{"tenant_id", "id", "code", "name", "mobile", "skill", "is_active", "created_at"},
		func(w *records.Worker) []any {
			return []any{w.TenantID, w.ID, w.Code, w.Name, w.Mobile, w.Skill, w.IsActive, w.CreatedAt}
		})
}

// CatalogRepository implements records.MasterStore and records.SequenceStore.
type CatalogRepository struct {
	db *DB
}

func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) ListCategory(ctx context.Context, s scope.Scope, category string) ([]*records.MasterRecord, error) {
	cond, args, n := where(s)
	rows, err := r.db.pool.Query(ctx, fmt.Sprintf(`
		SELECT tenant_id, id, category, name, sort_order, is_active, created_at
		FROM master_records%s AND category = $%d AND is_active
		ORDER BY sort_order, name`, cond, n), append(args, category)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list master records: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[records.MasterRecord])
}

func (r *CatalogRepository) ListStages(ctx context.Context, s scope.Scope) ([]*records.WorkflowStage, error) {
	cond, args, _ := where(s)
	rows, err := r.db.pool.Query(ctx, `
		SELECT tenant_id, id, name, position, color, is_final, is_active
		FROM workflow_stages`+cond+`
		ORDER BY position`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow stages: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[records.WorkflowStage])
}

const sequenceColumns = "tenant_id, id, document_type, prefix, current_value, padding, fiscal_year, reset_yearly, updated_at"

func (r *CatalogRepository) List(ctx context.Context, s scope.Scope) ([]*records.NumberSequence, error) {
	cond, args, _ := where(s)
	rows, err := r.db.pool.Query(ctx, "SELECT "+sequenceColumns+" FROM number_sequences"+cond+" ORDER BY document_type", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sequences: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[records.NumberSequence])
}

// Next increments the counter in a single statement, so concurrent callers
// never receive the same number. The row lock also serializes the fiscal
// year reset.
func (r *CatalogRepository) Next(ctx context.Context, s scope.Scope, documentType string, now time.Time) (string, error) {
	tenantID, err := s.RequireTenant()
	if err != nil {
		return "", err
	}
	rows, err := r.db.pool.Query(ctx, `
		UPDATE number_sequences
		SET current_value = CASE WHEN reset_yearly AND fiscal_year <> $3 THEN 1 ELSE current_value + 1 END,
		    fiscal_year   = CASE WHEN reset_yearly THEN $3 ELSE fiscal_year END,
		    updated_at    = $4
		WHERE tenant_id = $1 AND document_type = $2
		RETURNING `+sequenceColumns,
		tenantID, documentType, records.FiscalYear(now), now)
	if err != nil {
		return "", fmt.Errorf("failed to advance sequence: %w", err)
	}
	seq, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[records.NumberSequence])
	if errors.Is(err, pgx.ErrNoRows) {
		return "", records.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to advance sequence: %w", err)
	}
	return seq.Format(seq.Current), nil
}
