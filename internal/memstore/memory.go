// Copyright 2025 Tom Barlow
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

package memstore

import "sync"

// compile-time interface assertion.
var _ Backend = (*InMemory)(nil)

// InMemory is a process-local Backend with no persistence.
type InMemory struct {
	mu      sync.RWMutex
	records map[string][]Record // category -> records, append order
	order   []Record            // global append order, for All()
}

// NewInMemory returns an empty in-memory backend.
func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string][]Record)}
}

// Append implements Backend.
func (m *InMemory) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.records[rec.Category]
	for i, existing := range bucket {
		if existing.Key == rec.Key {
			// Drop the old entry so the overwrite moves to the end of the
			// append order, keeping List's most-recent-first contract.
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	m.records[rec.Category] = append(bucket, rec)
	m.order = append(m.order, rec)
	return nil
}

// List implements Backend.
func (m *InMemory) List(category string, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.records[category]
	out := make([]Record, len(bucket))
	for i, rec := range bucket {
		out[len(bucket)-1-i] = rec
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All implements Backend.
func (m *InMemory) All() ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, len(m.order))
	copy(out, m.order)
	return out, nil
}

// Close implements Backend. It is a no-op for InMemory.
func (m *InMemory) Close() error { return nil }
