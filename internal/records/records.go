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

// Package records holds the tenant-owned business records. Every entity embeds
// scope.Owned and is only reachable through a Store, which takes a scope.Scope.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelierhq/atelier/internal/scope"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrUnknownCategory = errors.New("unknown master data category")
)

// Entity is a tenant-owned row with a string primary key.
type Entity interface {
	scope.Record
	GetID() string
}

// Store is the scoped access path for one entity type.
type Store[T any] interface {
	List(ctx context.Context, s scope.Scope, limit, offset int) ([]*T, error)
	Get(ctx context.Context, s scope.Scope, id string) (*T, error)
	Create(ctx context.Context, s scope.Scope, rec *T) error
	Count(ctx context.Context, s scope.Scope) (int, error)
}

// Customer of a tenant's business.
type Customer struct {
	scope.Owned
	ID        string    `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	Mobile    string    `json:"mobile" db:"mobile"`
	Email     string    `json:"email,omitempty" db:"email"`
	City      string    `json:"city,omitempty" db:"city"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (c *Customer) GetID() string { return c.ID }

// Order is a garment production order.
type Order struct {
	scope.Owned
	ID         string          `json:"id" db:"id"`
	Number     string          `json:"number" db:"number"`
	CustomerID string          `json:"customer_id" db:"customer_id"`
	ItemType   string          `json:"item_type" db:"item_type"`
	Status     string          `json:"status" db:"status"`
	Priority   string          `json:"priority" db:"priority"`
	DueDate    *time.Time      `json:"due_date,omitempty" db:"due_date"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Notes      string          `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

func (o *Order) GetID() string { return o.ID }

// Worker is a tailor, karigar or other production staff member.
type Worker struct {
	scope.Owned
	ID        string    `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	Mobile    string    `json:"mobile,omitempty" db:"mobile"`
	Skill     string    `json:"skill,omitempty" db:"skill"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (w *Worker) GetID() string { return w.ID }

// MasterRecord is one entry of a per-tenant reference catalog.
type MasterRecord struct {
	scope.Owned
	ID        string    `json:"id" db:"id"`
	Category  string    `json:"category" db:"category"`
	Name      string    `json:"name" db:"name"`
	SortOrder int       `json:"sort_order" db:"sort_order"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (m *MasterRecord) GetID() string { return m.ID }

// WorkflowStage is one column of the production board.
type WorkflowStage struct {
	scope.Owned
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Position int    `json:"position" db:"position"`
	Color    string `json:"color" db:"color"`
	IsFinal  bool   `json:"is_final" db:"is_final"`
	IsActive bool   `json:"is_active" db:"is_active"`
}

func (w *WorkflowStage) GetID() string { return w.ID }

// NumberSequence is the counter behind one document numbering series.
type NumberSequence struct {
	scope.Owned
	ID           string    `json:"id" db:"id"`
	DocumentType string    `json:"document_type" db:"document_type"`
	Prefix       string    `json:"prefix" db:"prefix"`
	Current      int64     `json:"current" db:"current_value"`
	Padding      int       `json:"padding" db:"padding"`
	FiscalYear   string    `json:"fiscal_year" db:"fiscal_year"`
	ResetYearly  bool      `json:"reset_yearly" db:"reset_yearly"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

func (n *NumberSequence) GetID() string { return n.ID }

// Format renders value as a document number, e.g. ORD/2025-26/00042.
func (n *NumberSequence) Format(value int64) string {
	if n.FiscalYear == "" {
		return fmt.Sprintf("%s/%0*d", n.Prefix, n.Padding, value)
	}
	return fmt.Sprintf("%s/%s/%0*d", n.Prefix, n.FiscalYear, n.Padding, value)
}

// FiscalYear returns the Indian fiscal year label (April to March) containing t.
func FiscalYear(t time.Time) string {
	y := t.Year()
	if t.Month() < time.April {
		return fmt.Sprintf("%d-%02d", y-1, y%100)
	}
	return fmt.Sprintf("%d-%02d", y, (y+1)%100)
}
