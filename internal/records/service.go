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

package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atelierhq/atelier/internal/id"
	"github.com/atelierhq/atelier/internal/scope"
)

var (
	ErrInvalidInput     = errors.New("invalid record input")
	ErrInvalidReference = errors.New("referenced record does not exist")
)

const (
	defaultOrderStatus   = "New"
	defaultOrderPriority = "Normal"
)

// Service runs workspace CRUD. The scope always comes from the request
// principal, never from input.
type Service struct {
	customers Store[Customer]
	orders    Store[Order]
	workers   Store[Worker]
	master    MasterStore
	sequences SequenceStore
	now       func() time.Time
}

// NewService creates a new records service
func NewService(customers Store[Customer], orders Store[Order], workers Store[Worker], master MasterStore, sequences SequenceStore) *Service {
	return &Service{
		customers: customers,
		orders:    orders,
		workers:   workers,
		master:    master,
		sequences: sequences,
		now:       time.Now,
	}
}

func (s *Service) ListCustomers(ctx context.Context, limit, offset int) ([]*Customer, error) {
	return s.customers.List(ctx, scope.FromContext(ctx), limit, offset)
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	return s.customers.Get(ctx, scope.FromContext(ctx), customerID)
}

// CreateCustomer stores c in the caller's tenant, numbering it from the customer sequence.
func (s *Service) CreateCustomer(ctx context.Context, c *Customer) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	sc := scope.FromContext(ctx)
	now := s.now()
	code, err := s.sequences.Next(ctx, sc, DocCustomer, now)
	if err != nil {
		return err
	}
	c.ID = id.NewUUIDv7()
	c.Code = code
	c.CreatedAt = now
	return s.customers.Create(ctx, sc, c)
}

func (s *Service) ListOrders(ctx context.Context, limit, offset int) ([]*Order, error) {
	return s.orders.List(ctx, scope.FromContext(ctx), limit, offset)
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.Get(ctx, scope.FromContext(ctx), orderID)
}

// CreateOrder stores o. The customer must be visible in the same scope, so an
// order can never point at another tenant's customer.
func (s *Service) CreateOrder(ctx context.Context, o *Order) error {
	if o.CustomerID == "" || strings.TrimSpace(o.ItemType) == "" {
		return fmt.Errorf("%w: customer_id and item_type are required", ErrInvalidInput)
	}
	if o.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	sc := scope.FromContext(ctx)
	if _, err := s.customers.Get(ctx, sc, o.CustomerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidReference
		}
		return err
	}

	now := s.now()
	number, err := s.sequences.Next(ctx, sc, DocOrder, now)
	if err != nil {
		return err
	}
	o.ID = id.NewUUIDv7()
	o.Number = number
	o.CreatedAt = now
	if o.Status == "" {
		o.Status = defaultOrderStatus
	}
	if o.Priority == "" {
		o.Priority = defaultOrderPriority
	}
	return s.orders.Create(ctx, sc, o)
}

func (s *Service) ListWorkers(ctx context.Context, limit, offset int) ([]*Worker, error) {
	return s.workers.List(ctx, scope.FromContext(ctx), limit, offset)
}

func (s *Service) GetWorker(ctx context.Context, workerID string) (*Worker, error) {
	return s.workers.Get(ctx, scope.FromContext(ctx), workerID)
}

func (s *Service) CreateWorker(ctx context.Context, w *Worker) error {
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	sc := scope.FromContext(ctx)
	now := s.now()
	code, err := s.sequences.Next(ctx, sc, DocWorker, now)
	if err != nil {
		return err
	}
	w.ID = id.NewUUIDv7()
	w.Code = code
	w.IsActive = true
	w.CreatedAt = now
	return s.workers.Create(ctx, sc, w)
}

// Master lists one catalog category of the caller's tenant.
func (s *Service) Master(ctx context.Context, category string) ([]*MasterRecord, error) {
	if !IsCategory(category) {
		return nil, ErrUnknownCategory
	}
	return s.master.ListCategory(ctx, scope.FromContext(ctx), category)
}

func (s *Service) Stages(ctx context.Context) ([]*WorkflowStage, error) {
	return s.master.ListStages(ctx, scope.FromContext(ctx))
}

func (s *Service) Sequences(ctx context.Context) ([]*NumberSequence, error) {
	return s.sequences.List(ctx, scope.FromContext(ctx))
}
