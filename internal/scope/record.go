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

package scope

// Record is implemented by every tenant-owned entity.
type Record interface {
	OwnerTenantID() string
	SetOwnerTenantID(tenantID string)
}

// Owned is embedded by tenant-owned entities to satisfy Record.
type Owned struct {
	TenantID string `json:"tenant_id" db:"tenant_id"`
}

func (o *Owned) OwnerTenantID() string { return o.TenantID }

func (o *Owned) SetOwnerTenantID(tenantID string) { o.TenantID = tenantID }

// Filter returns the elements of recs visible through s.
func Filter[T Record](s Scope, recs []T) []T {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		if s.Allows(r) {
			out = append(out, r)
		}
	}
	return out
}
