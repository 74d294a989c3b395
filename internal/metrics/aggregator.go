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

package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joyshmitz/zeroclaw/internal/clock"
	"github.com/joyshmitz/zeroclaw/internal/sop"
	zcerrors "github.com/joyshmitz/zeroclaw/pkg/errors"
)

// Aggregator is the C3 component. Pushers (the tool surface) take the
// write lock briefly; query callers (an external policy evaluator) take
// the read lock. A panicking holder poisons the aggregator exactly as the
// engine poisons itself, per spec.
type Aggregator struct {
	mu       sync.RWMutex
	poisoned atomic.Bool

	clock clock.Clock
	state *CollectorState
}

// New returns an empty Aggregator.
func New(clk clock.Clock) *Aggregator {
	return &Aggregator{clock: clk, state: newCollectorState()}
}

func (a *Aggregator) withWriteLock(fn func()) (err error) {
	if a.poisoned.Load() {
		return &zcerrors.LockPoisonedError{Component: "metrics-aggregator", Cause: "aggregator state unrecoverable after a prior panic"}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			a.poisoned.Store(true)
			err = &zcerrors.LockPoisonedError{Component: "metrics-aggregator", Cause: r}
		}
	}()
	fn()
	return nil
}

func (a *Aggregator) withReadLock(fn func()) (err error) {
	if a.poisoned.Load() {
		return &zcerrors.LockPoisonedError{Component: "metrics-aggregator", Cause: "provider unavailable"}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	defer func() {
		if r := recover(); r != nil {
			a.poisoned.Store(true)
			err = &zcerrors.LockPoisonedError{Component: "metrics-aggregator", Cause: r}
		}
	}()
	fn()
	return nil
}

// RecordApproval increments human-approval counters immediately and
// stashes a pending approval entry keyed by runID, so the eventual
// RecordRunComplete can tag its RunSnapshot for windowed-rate purposes
// without double-counting the all-time total.
func (a *Aggregator) RecordApproval(sopName, runID string) error {
	return a.withWriteLock(func() {
		a.state.Global.HumanApprovals++
		a.state.counters(sopName).HumanApprovals++
		a.state.pendingApprovals[runID] = a.clock.Now()
		mirrorApproval(sopName)
	})
}

// RecordTimeoutAutoApprove is the symmetric counterpart of RecordApproval
// for approvals that auto-fired after a timeout.
func (a *Aggregator) RecordTimeoutAutoApprove(sopName, runID string) error {
	return a.withWriteLock(func() {
		a.state.Global.TimeoutAutoApprovals++
		a.state.counters(sopName).TimeoutAutoApprovals++
		a.state.pendingTimeoutApprovals[runID] = a.clock.Now()
		mirrorTimeoutApproval(sopName)
	})
}

// RecordRunComplete evicts stale pending entries, drains any pending
// approval/timeout-approval for run, builds a RunSnapshot, and folds it
// into both the global and per-SOP counters.
func (a *Aggregator) RecordRunComplete(run *sop.Run) error {
	return a.withWriteLock(func() {
		now := a.clock.Now()
		a.evictStale(now)

		_, approved := a.state.pendingApprovals[run.RunID]
		delete(a.state.pendingApprovals, run.RunID)
		_, timeoutApproved := a.state.pendingTimeoutApprovals[run.RunID]
		delete(a.state.pendingTimeoutApprovals, run.RunID)

		snap := snapshotFromRun(run, approved, timeoutApproved)
		a.state.Global.pushSnapshot(snap)
		a.state.counters(run.SopName).pushSnapshot(snap)
		mirrorRunComplete(snap)
	})
}

func (a *Aggregator) evictStale(now time.Time) {
	for id, t := range a.state.pendingApprovals {
		if now.Sub(t) > staleApprovalAge {
			delete(a.state.pendingApprovals, id)
		}
	}
	for id, t := range a.state.pendingTimeoutApprovals {
		if now.Sub(t) > staleApprovalAge {
			delete(a.state.pendingTimeoutApprovals, id)
		}
	}
}

func snapshotFromRun(run *sop.Run, approved, timeoutApproved bool) RunSnapshot {
	var completedAt time.Time
	if run.CompletedAt != nil {
		completedAt = *run.CompletedAt
	}

	snap := RunSnapshot{
		RunID:              run.RunID,
		SopName:            run.SopName,
		CompletedAt:        completedAt,
		Status:             string(run.Status),
		StepsDefined:       run.TotalSteps,
		HadHumanApproval:   approved,
		HadTimeoutApproval: timeoutApproved,
	}
	for _, r := range run.StepResults {
		snap.StepsExecuted++
		switch r.Status {
		case sop.StepFailed:
			snap.StepsFailed++
		case sop.StepSkipped:
			snap.StepsSkipped++
		}
	}
	return snap
}

// GetMetricValue resolves name per the dotted-name grammar and returns its
// current value. ok is false when name does not resolve to a known metric.
func (a *Aggregator) GetMetricValue(name string) (value float64, ok bool, err error) {
	err = a.withReadLock(func() {
		value, ok = resolve(a.state, name, a.clock.Now())
	})
	return value, ok, err
}

// Snapshot returns a deep-enough copy of the aggregator state for tests
// and diagnostics.
func (a *Aggregator) Snapshot() (*CollectorState, error) {
	var out *CollectorState
	err := a.withReadLock(func() {
		out = &CollectorState{
			Global: a.state.Global,
			PerSOP: make(map[string]*Counters, len(a.state.PerSOP)),
		}
		for name, c := range a.state.PerSOP {
			cp := *c
			out.PerSOP[name] = &cp
		}
	})
	return out, err
}
