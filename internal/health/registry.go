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

// Package health implements the process-wide health registry: the single
// piece of global mutable state in the daemon, deliberately narrow —
// typed init and two public mutators (mark_ok, mark_error) plus a
// snapshot reader. The SOP Engine and Metrics Aggregator are never
// globals; only this registry is, because supervisors across independent
// components all need to publish to the same place.
package health

import (
	"sync"
	"time"
)

// Status is a component's last-observed health.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// ComponentHealth is the published state for one supervised component.
type ComponentHealth struct {
	Status       Status `json:"status"`
	LastError    string `json:"last_error,omitempty"`
	RestartCount uint64 `json:"restart_count"`
}

// Snapshot is the full registry state at a point in time, shaped to match
// the daemon_state.json document.
type Snapshot struct {
	Components map[string]ComponentHealth `json:"components"`
	WrittenAt  time.Time                  `json:"written_at"`
}

// Registry is a process-wide singleton; construct one with New and share
// it explicitly rather than reaching for a package-level global, so tests
// can run in isolation.
type Registry struct {
	mu         sync.Mutex
	components map[string]*ComponentHealth
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{components: make(map[string]*ComponentHealth)}
}

// MarkOK records that name is healthy, clearing any previous error.
func (r *Registry) MarkOK(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.component(name)
	c.Status = StatusOK
	c.LastError = ""
}

// MarkError records that name failed with the given message and bumps its
// restart counter.
func (r *Registry) MarkError(name, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.component(name)
	c.Status = StatusError
	c.LastError = message
	c.RestartCount++
}

func (r *Registry) component(name string) *ComponentHealth {
	c, ok := r.components[name]
	if !ok {
		c = &ComponentHealth{}
		r.components[name] = c
	}
	return c
}

// Snapshot returns a copy of the current registry state, with now recorded
// as WrittenAt.
func (r *Registry) Snapshot(now time.Time) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Snapshot{Components: make(map[string]ComponentHealth, len(r.components)), WrittenAt: now}
	for name, c := range r.components {
		out.Components[name] = *c
	}
	return out
}
