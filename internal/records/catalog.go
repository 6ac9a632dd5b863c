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
	"slices"
	"time"

	"github.com/atelierhq/atelier/internal/scope"
)

// Master data categories.
const (
	CategoryItemTypes          = "item_types"
	CategoryWorkTypes          = "work_types"
	CategoryEmbellishmentZones = "embellishment_zones"
	CategoryInquirySources     = "inquiry_sources"
	CategoryOccasions          = "occasions"
	CategoryBudgetRanges       = "budget_ranges"
	CategoryMeasurementTypes   = "measurement_types"
	CategoryOrderStatuses      = "order_statuses"
	CategoryOrderPriorities    = "order_priorities"
)

// Document types that own a number sequence.
const (
	DocOrder         = "order"
	DocGSTInvoice    = "gst_invoice"
	DocNonGSTInvoice = "non_gst_invoice"
	DocInquiry       = "inquiry"
	DocCustomer      = "customer"
	DocWorker        = "worker"
	DocPayment       = "payment"
)

// SequencePadding is the zero-padding width of every seeded sequence.
const SequencePadding = 5

// DefaultCatalog is the system catalog copied into every new tenant.
var DefaultCatalog = map[string][]string{
	CategoryItemTypes:          {"Lehenga", "Saree Blouse", "Anarkali", "Kurta Set", "Sherwani", "Gown", "Salwar Suit", "Dupatta"},
	CategoryWorkTypes:          {"Zardozi", "Aari", "Sequin", "Thread Work", "Mirror Work", "Gota Patti", "Cutdana", "Resham"},
	CategoryEmbellishmentZones: {"Neckline", "Sleeves", "Border", "Yoke", "Back", "Hem", "Full Body"},
	CategoryInquirySources:     {"Walk-in", "Instagram", "WhatsApp", "Referral", "Website", "Exhibition"},
	CategoryOccasions:          {"Wedding", "Reception", "Engagement", "Sangeet", "Mehendi", "Festive", "Party"},
	CategoryBudgetRanges:       {"Under 25,000", "25,000 - 50,000", "50,000 - 1,00,000", "1,00,000 - 2,50,000", "Above 2,50,000"},
	CategoryMeasurementTypes:   {"Bust", "Waist", "Hip", "Shoulder", "Sleeve Length", "Armhole", "Front Neck Depth", "Back Neck Depth", "Full Length"},
	CategoryOrderStatuses:      {"New", "Confirmed", "In Production", "Trial", "Alteration", "Ready", "Delivered", "Cancelled"},
	CategoryOrderPriorities:    {"Low", "Normal", "High", "Urgent"},
}

// Categories returns the catalog categories in a stable order.
func Categories() []string {
	out := make([]string, 0, len(DefaultCatalog))
	for c := range DefaultCatalog {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// IsCategory reports whether c is a known catalog category.
func IsCategory(c string) bool {
	_, ok := DefaultCatalog[c]
	return ok
}

// DefaultStage describes a seeded workflow stage.
type DefaultStage struct {
	Name    string
	Color   string
	IsFinal bool
}

// DefaultWorkflow is the production board seeded for new tenants.
var DefaultWorkflow = []DefaultStage{
	{Name: "Design", Color: "#6366f1"},
	{Name: "Cutting", Color: "#0ea5e9"},
	{Name: "Embroidery", Color: "#f59e0b"},
	{Name: "Stitching", Color: "#10b981"},
	{Name: "Finishing", Color: "#8b5cf6"},
	{Name: "Quality Check", Color: "#ef4444"},
	{Name: "Ready", Color: "#22c55e", IsFinal: true},
}

// DefaultSequences maps each document type to its prefix.
var DefaultSequences = []struct {
	DocumentType string
	Prefix       string
}{
	{DocOrder, "ORD"},
	{DocGSTInvoice, "INV"},
	{DocNonGSTInvoice, "BIL"},
	{DocInquiry, "INQ"},
	{DocCustomer, "CUS"},
	{DocWorker, "WRK"},
	{DocPayment, "PAY"},
}

// MasterStore reads per-tenant reference data.
type MasterStore interface {
	ListCategory(ctx context.Context, s scope.Scope, category string) ([]*MasterRecord, error)
	ListStages(ctx context.Context, s scope.Scope) ([]*WorkflowStage, error)
}

// SequenceStore allocates document numbers.
type SequenceStore interface {
	List(ctx context.Context, s scope.Scope) ([]*NumberSequence, error)
	// Next increments the counter of documentType for the scope's tenant and
	// returns the formatted number. A sequence marked reset_yearly restarts at 1
	// when the fiscal year of now differs from the stored one.
	Next(ctx context.Context, s scope.Scope, documentType string, now time.Time) (string, error)
}
