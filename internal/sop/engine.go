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

package sop

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joyshmitz/zeroclaw/internal/clock"
	sopErrors "github.com/joyshmitz/zeroclaw/pkg/errors"
)

// MinFinishedRetention is the minimum number of finished runs retained in
// memory per SOP, per spec.md §3 ("FIFO cap, implementation-defined,
// minimum 100 per SOP").
const MinFinishedRetention = 100

// Engine is the sole mutator of run state (C4). It owns the catalogue of
// SOP definitions and the live/finished run registries. All public methods
// are safe for concurrent use; mutations are serialised by a single mutex,
// consistent with spec.md §5 ("the hot path is microseconds").
type Engine struct {
	mu       sync.Mutex
	poisoned atomic.Bool

	clock clock.Clock
	ids   *clock.IDGenerator

	catalog map[string]*Definition

	active        map[string]*Run   // run_id -> non-terminal run
	finished      map[string][]*Run // sop_name -> FIFO finished runs, oldest first
	finishedIndex map[string]*Run   // run_id -> finished run, for get_run

	finishedCap int
}

// New constructs an Engine over the given catalogue. Definitions are keyed
// by Name; duplicate names overwrite earlier entries.
func New(clk clock.Clock, definitions ...*Definition) *Engine {
	e := &Engine{
		clock:         clk,
		ids:           &clock.IDGenerator{},
		catalog:       make(map[string]*Definition),
		active:        make(map[string]*Run),
		finished:      make(map[string][]*Run),
		finishedIndex: make(map[string]*Run),
		finishedCap:   MinFinishedRetention,
	}
	for _, d := range definitions {
		e.catalog[d.Name] = d
	}
	return e
}

// AddDefinition registers or replaces a catalogue entry.
func (e *Engine) AddDefinition(d *Definition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.catalog[d.Name] = d
}

// Definition returns the catalogue entry for name, or nil if absent.
func (e *Engine) Definition(name string) *Definition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog[name]
}

// withLock serialises fn against the engine mutex and converts any panic
// inside fn into a LockPoisonedError, latching the engine so that every
// subsequent call fails fast (spec.md §5 "Poisoning").
func (e *Engine) withLock(fn func() (Action, error)) (action Action, err error) {
	if e.poisoned.Load() {
		return Action{}, &sopErrors.LockPoisonedError{Component: "sop-engine", Cause: "engine state unrecoverable after a prior panic"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			e.poisoned.Store(true)
			action = Action{}
			err = &sopErrors.LockPoisonedError{Component: "sop-engine", Cause: r}
		}
	}()

	return fn()
}

// StartRun looks up sopName in the catalogue and, if the cooldown and
// concurrency gates permit it, registers a new run. See spec.md §4.1.
func (e *Engine) StartRun(sopName string, event Event) (Action, error) {
	return e.withLock(func() (Action, error) {
		def, ok := e.catalog[sopName]
		if !ok {
			return Action{}, &sopErrors.UnknownSopError{Name: sopName}
		}

		if remaining, active := e.cooldownRemaining(def); active {
			return Action{}, &sopErrors.CooldownActiveError{SopName: sopName, RemainingSecs: remaining}
		}

		if def.MaxConcurrent > 0 && e.nonTerminalCount(sopName) >= def.MaxConcurrent {
			return Action{}, &sopErrors.ConcurrencyLimitError{SopName: sopName, MaxConcurrent: def.MaxConcurrent}
		}

		now := e.clock.Now()
		runID := e.ids.Next()

		if def.TotalSteps() == 0 {
			run := &Run{
				RunID:        runID,
				SopName:      sopName,
				TriggerEvent: event,
				Status:       StatusCompleted,
				CurrentStep:  1,
				TotalSteps:   0,
				StartedAt:    now,
				CompletedAt:  &now,
			}
			e.fileFinished(run)
			return Action{Kind: ActionCompleted, RunID: runID, SopName: sopName}, nil
		}

		run := &Run{
			RunID:        runID,
			SopName:      sopName,
			TriggerEvent: event,
			CurrentStep:  1,
			TotalSteps:   def.TotalSteps(),
			StartedAt:    now,
			StepResults:  []StepResult{},
		}

		step := def.Step(1)
		if e.needsApproval(def, step) {
			run.Status = StatusWaitingApproval
			run.WaitingSince = &now
			e.active[runID] = run
			return Action{
				Kind:       ActionWaitApproval,
				RunID:      runID,
				SopName:    sopName,
				StepNumber: 1,
				Context:    renderContext(def, step, event),
			}, nil
		}

		run.Status = StatusRunning
		e.active[runID] = run
		return Action{
			Kind:       ActionExecuteStep,
			RunID:      runID,
			SopName:    sopName,
			StepNumber: 1,
			Context:    renderContext(def, step, event),
		}, nil
	})
}

// AdvanceStep appends result to the named run's step history and transitions
// the run forward. See spec.md §4.1.
func (e *Engine) AdvanceStep(runID string, result StepResult) (Action, error) {
	return e.withLock(func() (Action, error) {
		run, ok := e.active[runID]
		if !ok {
			if _, terminal := e.finishedIndex[runID]; terminal {
				return Action{}, &sopErrors.InvalidTransitionError{RunID: runID, Reason: "run is terminal"}
			}
			return Action{}, &sopErrors.UnknownRunError{RunID: runID}
		}

		if result.StepNumber != run.CurrentStep {
			return Action{}, &sopErrors.InvalidTransitionError{
				RunID:  runID,
				Reason: "step_number does not match current_step",
			}
		}

		def := e.catalog[run.SopName]
		now := e.clock.Now()
		if result.CompletedAt.IsZero() {
			result.CompletedAt = now
		}
		if result.StartedAt.IsZero() {
			result.StartedAt = result.CompletedAt
		}
		run.StepResults = append(run.StepResults, result)

		switch result.Status {
		case StepFailed:
			run.Status = StatusFailed
			run.CompletedAt = &now
			delete(e.active, runID)
			e.fileFinished(run)
			return Action{Kind: ActionFailed, RunID: runID, SopName: run.SopName, Reason: result.Output}, nil

		case StepCompleted, StepSkipped:
			if run.CurrentStep < run.TotalSteps {
				run.CurrentStep++
				nextStep := def.Step(run.CurrentStep)
				ctx := renderContext(def, nextStep, run.TriggerEvent)
				if e.needsApproval(def, nextStep) {
					run.Status = StatusWaitingApproval
					run.WaitingSince = &now
					return Action{Kind: ActionWaitApproval, RunID: runID, SopName: run.SopName, StepNumber: run.CurrentStep, Context: ctx}, nil
				}
				run.Status = StatusRunning
				return Action{Kind: ActionExecuteStep, RunID: runID, SopName: run.SopName, StepNumber: run.CurrentStep, Context: ctx}, nil
			}

			run.Status = StatusCompleted
			run.CompletedAt = &now
			delete(e.active, runID)
			e.fileFinished(run)
			return Action{Kind: ActionCompleted, RunID: runID, SopName: run.SopName}, nil

		default:
			// Unreachable given StepStatus's closed set, but fail closed
			// rather than silently accept an unrecognised status.
			run.StepResults = run.StepResults[:len(run.StepResults)-1]
			return Action{}, &sopErrors.ParamInvalidError{Field: "status", Reason: "unrecognised step status"}
		}
	})
}

// ApproveStep transitions a WaitingApproval run to Running and returns the
// ExecuteStep action for its current step. See spec.md §4.1.
func (e *Engine) ApproveStep(runID string) (Action, error) {
	return e.withLock(func() (Action, error) {
		run, ok := e.active[runID]
		if !ok {
			if _, terminal := e.finishedIndex[runID]; terminal {
				return Action{}, &sopErrors.InvalidTransitionError{RunID: runID, Reason: "run is terminal"}
			}
			return Action{}, &sopErrors.UnknownRunError{RunID: runID}
		}
		if run.Status != StatusWaitingApproval {
			return Action{}, &sopErrors.InvalidTransitionError{RunID: runID, Reason: "run is not waiting for approval"}
		}

		def := e.catalog[run.SopName]
		run.Status = StatusRunning
		run.WaitingSince = nil

		step := def.Step(run.CurrentStep)
		return Action{
			Kind:       ActionExecuteStep,
			RunID:      runID,
			SopName:    run.SopName,
			StepNumber: run.CurrentStep,
			Context:    renderContext(def, step, run.TriggerEvent),
		}, nil
	})
}

// GetRun returns a copy of the run with the given id, active or finished.
func (e *Engine) GetRun(runID string) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if run, ok := e.active[runID]; ok {
		return run.Clone(), nil
	}
	if run, ok := e.finishedIndex[runID]; ok {
		return run.Clone(), nil
	}
	return nil, &sopErrors.UnknownRunError{RunID: runID}
}

// ActiveRuns returns copies of every non-terminal run, optionally filtered
// by SOP name, sorted by run id for deterministic output.
func (e *Engine) ActiveRuns(sopName string) []*Run {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Run, 0, len(e.active))
	for _, run := range e.active {
		if sopName != "" && run.SopName != sopName {
			continue
		}
		out = append(out, run.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

// FinishedRuns returns copies of finished runs for sopName in the order
// they terminated (oldest first). Pass "" to merge across every SOP; the
// merged list is ordered by run id rather than by termination time.
func (e *Engine) FinishedRuns(sopName string) []*Run {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sopName != "" {
		runs := e.finished[sopName]
		out := make([]*Run, len(runs))
		for i, r := range runs {
			out[i] = r.Clone()
		}
		return out
	}

	var out []*Run
	for _, runs := range e.finished {
		for _, r := range runs {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

// needsApproval reports whether the engine must halt before executing step,
// either because the SOP runs in Supervised mode or because the step itself
// demands confirmation (spec.md §3 invariant (c)).
func (e *Engine) needsApproval(def *Definition, step *StepDefinition) bool {
	return def.ExecutionMode == ModeSupervised || step.RequiresConfirmation
}

// cooldownRemaining reports whether sopName is still within its cooldown
// window and, if so, how many seconds remain. Ties among equally-recent
// finished runs are broken by run-id order (spec.md §4.1).
func (e *Engine) cooldownRemaining(def *Definition) (float64, bool) {
	if def.CooldownSecs <= 0 {
		return 0, false
	}
	runs := e.finished[def.Name]
	if len(runs) == 0 {
		return 0, false
	}

	latest := runs[0]
	for _, r := range runs[1:] {
		if r.CompletedAt == nil {
			continue
		}
		if latest.CompletedAt == nil || r.CompletedAt.After(*latest.CompletedAt) ||
			(r.CompletedAt.Equal(*latest.CompletedAt) && r.RunID > latest.RunID) {
			latest = r
		}
	}
	if latest.CompletedAt == nil {
		return 0, false
	}

	elapsed := e.clock.Now().Sub(*latest.CompletedAt)
	window := time.Duration(def.CooldownSecs) * time.Second
	if elapsed >= window {
		return 0, false
	}
	return (window - elapsed).Seconds(), true
}

// nonTerminalCount returns the number of active runs for sopName.
func (e *Engine) nonTerminalCount(sopName string) int {
	n := 0
	for _, r := range e.active {
		if r.SopName == sopName {
			n++
		}
	}
	return n
}

// fileFinished moves run into the finished registry, enforcing the
// per-SOP FIFO cap.
func (e *Engine) fileFinished(run *Run) {
	e.finishedIndex[run.RunID] = run
	bucket := append(e.finished[run.SopName], run)
	if len(bucket) > e.finishedCap {
		evicted := bucket[0]
		bucket = bucket[1:]
		delete(e.finishedIndex, evicted.RunID)
	}
	e.finished[run.SopName] = bucket
}
