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

// Package metrics implements the Metrics Aggregator (C3): in-memory
// counters plus a bounded ring of recent-run snapshots, queryable by a
// dotted metric name, and rebuildable from the Audit Sink on warm start.
package metrics

import "time"

// recentRunsCap bounds the FIFO of RunSnapshot kept per Counters (the
// global scope and each SOP have their own ring).
const recentRunsCap = 1000

// staleApprovalAge is how long a pending approval/timeout-approval entry
// survives without a matching record_run_complete before it is evicted.
const staleApprovalAge = time.Hour

// Counters holds every push-API-derived tally for one scope (global or a
// single SOP).
type Counters struct {
	RunsCompleted        uint64
	RunsFailed           uint64
	RunsCancelled        uint64
	StepsExecuted        uint64
	StepsDefined         uint64
	StepsFailed          uint64
	StepsSkipped         uint64
	HumanApprovals       uint64
	TimeoutAutoApprovals uint64

	RecentRuns []RunSnapshot
}

// pushSnapshot records snap into the FIFO, evicting the oldest entry once
// the cap is exceeded, and folds its run/step counts into the running
// totals. HumanApprovals/TimeoutAutoApprovals are NOT bumped here: they
// are incremented at approval time (RecordApproval/RecordTimeoutAutoApprove),
// so this only has to carry the flags for windowed-rate recomputation.
func (c *Counters) pushSnapshot(snap RunSnapshot) {
	switch snap.Status {
	case "completed":
		c.RunsCompleted++
	case "failed":
		c.RunsFailed++
	case "cancelled":
		c.RunsCancelled++
	}
	c.StepsExecuted += uint64(snap.StepsExecuted)
	c.StepsDefined += uint64(snap.StepsDefined)
	c.StepsFailed += uint64(snap.StepsFailed)
	c.StepsSkipped += uint64(snap.StepsSkipped)

	c.RecentRuns = append(c.RecentRuns, snap)
	if len(c.RecentRuns) > recentRunsCap {
		c.RecentRuns = c.RecentRuns[len(c.RecentRuns)-recentRunsCap:]
	}
}

// RunSnapshot is the compact record folded into Counters.RecentRuns when a
// run reaches record_run_complete.
type RunSnapshot struct {
	RunID              string
	SopName            string
	CompletedAt        time.Time
	Status             string // "completed" | "failed" | "cancelled"
	StepsExecuted      int
	StepsDefined       int
	StepsFailed        int
	StepsSkipped       int
	HadHumanApproval   bool
	HadTimeoutApproval bool
}

// CollectorState is the full aggregator state: global counters, per-SOP
// counters, and the two pending-approval correlation maps the push API
// drains from on record_run_complete.
type CollectorState struct {
	Global Counters
	PerSOP map[string]*Counters

	pendingApprovals        map[string]time.Time
	pendingTimeoutApprovals map[string]time.Time
}

// newCollectorState returns an empty, ready-to-use state.
func newCollectorState() *CollectorState {
	return &CollectorState{
		PerSOP:                  make(map[string]*Counters),
		pendingApprovals:        make(map[string]time.Time),
		pendingTimeoutApprovals: make(map[string]time.Time),
	}
}

func (s *CollectorState) counters(sopName string) *Counters {
	c, ok := s.PerSOP[sopName]
	if !ok {
		c = &Counters{}
		s.PerSOP[sopName] = c
	}
	return c
}
