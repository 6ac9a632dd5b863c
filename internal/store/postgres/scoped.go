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
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier/internal/records"
	"github.com/atelierhq/atelier/internal/scope"
)

// ScopedTable is the generic store for a tenant-owned table. Every read is
// conjoined with the scope predicate on tenant_id and every insert is
// stamped through the scope first, so a table built on it cannot be read or
// written outside the caller's tenant.
type ScopedTable[T any, PT interface {
	*T
	records.Entity
}] struct {
	db      *DB
	table   string
	columns []string
	orderBy string
	values  func(PT) []any
}

// NewScopedTable describes table. columns must start with "tenant_id" and
// values must return the insert arguments in column order.
func NewScopedTable[T any, PT interface {
	*T
	records.Entity
}](db *DB, table, orderBy string, columns []string, values func(PT) []any) *ScopedTable[T, PT] {
	return &ScopedTable[T, PT]{db: db, table: table, columns: columns, orderBy: orderBy, values: values}
}

func (t *ScopedTable[T, PT]) selectFrom() string {
	return "SELECT " + strings.Join(t.columns, ", ") + " FROM " + t.table
}

// where renders the scope predicate as the first condition, returning the
// next free placeholder number.
func where(s scope.Scope) (string, []any, int) {
	pred, args := s.Predicate("tenant_id", 1)
	return " WHERE " + pred, args, len(args) + 1
}

func (t *ScopedTable[T, PT]) List(ctx context.Context, s scope.Scope, limit, offset int) ([]*T, error) {
	cond, args, n := where(s)
	sql := fmt.Sprintf("%s%s ORDER BY %s LIMIT $%d OFFSET $%d", t.selectFrom(), cond, t.orderBy, n, n+1)
	rows, err := t.db.pool.Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", t.table, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[T])
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", t.table, err)
	}
	return out, nil
}

func (t *ScopedTable[T, PT]) Get(ctx context.Context, s scope.Scope, id string) (*T, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, records.ErrNotFound
	}
	cond, args, n := where(s)
	sql := fmt.Sprintf("%s%s AND id = $%d", t.selectFrom(), cond, n)
	rows, err := t.db.pool.Query(ctx, sql, append(args, id)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", t.table, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByNameLax[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", t.table, err)
	}
	return rec, nil
}

func (t *ScopedTable[T, PT]) Create(ctx context.Context, s scope.Scope, rec *T) error {
	return t.insert(ctx, t.db.pool, s, PT(rec))
}

func (t *ScopedTable[T, PT]) insert(ctx context.Context, q querier, s scope.Scope, rec PT) error {
	if err := s.Stamp(rec); err != nil {
		return err
	}
	ph := make([]string, len(t.columns))
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.table, strings.Join(t.columns, ", "), strings.Join(ph, ", "))
	if _, err := q.Exec(ctx, sql, t.values(rec)...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", t.table, err)
	}
	return nil
}

func (t *ScopedTable[T, PT]) Count(ctx context.Context, s scope.Scope) (int, error) {
	cond, args, _ := where(s)
	var n int
	if err := t.db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+t.table+cond, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.table, err)
	}
	return n, nil
}
