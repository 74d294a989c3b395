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

// Package toolsurface implements the Operator Tool Surface (C5): four
// command-shaped entry points that serialise operator intent into SOP
// Engine calls, then apply the audit and metrics side-effects outside the
// engine's critical section.
package toolsurface

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/joyshmitz/zeroclaw/internal/audit"
	"github.com/joyshmitz/zeroclaw/internal/clock"
	"github.com/joyshmitz/zeroclaw/internal/metrics"
	"github.com/joyshmitz/zeroclaw/internal/sop"
	zcerrors "github.com/joyshmitz/zeroclaw/pkg/errors"
)

// Result is the shape every tool call returns on success or domain
// failure. A hard parameter-validation failure is instead returned as a
// Go error, distinct from Result.Success == false.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

func failure(err error) *Result {
	return &Result{Success: false, Error: err.Error()}
}

func success(output string) *Result {
	return &Result{Success: true, Output: output}
}

// Surface wires the engine to the audit sink and metrics aggregator. It
// holds no state of its own beyond these collaborators.
type Surface struct {
	engine  *sop.Engine
	audit   *audit.Sink
	metrics *metrics.Aggregator
	clock   clock.Clock
	log     *slog.Logger
}

// New returns a Surface over the given collaborators.
func New(engine *sop.Engine, auditSink *audit.Sink, agg *metrics.Aggregator, clk clock.Clock, logger *slog.Logger) *Surface {
	return &Surface{engine: engine, audit: auditSink, metrics: agg, clock: clk, log: logger}
}

// Metrics exposes the underlying aggregator so callers outside the tool
// surface (the operator CLI's "metrics get" command) can run read-only
// queries without a fifth tool-shaped entry point.
func (s *Surface) Metrics() *metrics.Aggregator { return s.metrics }

// ExecuteParams are the sop_execute tool's parameters.
type ExecuteParams struct {
	Name    string `json:"name"`
	Payload string `json:"payload,omitempty"`
}

// Execute constructs a Manual SopEvent with the current time, starts a run,
// and — outside the engine lock — writes a run-start audit record for any
// action that registered a run (every successful start; an unknown SOP or
// a cooldown/concurrency refusal registers nothing). A zero-step SOP
// completes immediately, so its run-complete record and metrics are
// written here too.
func (s *Surface) Execute(params ExecuteParams) (*Result, error) {
	if params.Name == "" {
		return nil, &zcerrors.ParamInvalidError{Field: "name", Reason: "must not be empty"}
	}

	event := sop.Event{Source: sop.SourceManual, Payload: params.Payload, Timestamp: s.clock.Now()}
	action, err := s.engine.StartRun(params.Name, event)
	if err != nil {
		return failure(err), nil
	}

	if run, getErr := s.engine.GetRun(action.RunID); getErr == nil {
		s.audit.LogRunStart(run)
		if run.Status.IsTerminal() {
			s.audit.LogRunComplete(run)
			if mErr := s.metrics.RecordRunComplete(run); mErr != nil {
				s.log.Warn("toolsurface: record_run_complete failed", "run_id", run.RunID, "error", mErr)
			}
		}
	}

	return success(renderAction(action)), nil
}

// AdvanceParams are the sop_advance tool's parameters.
type AdvanceParams struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Output string `json:"output"`
}

// Advance reads the run's current step, builds a SopStepResult, advances
// it, and on success writes a step-result audit record (plus a
// run-complete record when the action was terminal).
func (s *Surface) Advance(params AdvanceParams) (*Result, error) {
	if params.RunID == "" {
		return nil, &zcerrors.ParamInvalidError{Field: "run_id", Reason: "must not be empty"}
	}
	status, err := parseStepStatus(params.Status)
	if err != nil {
		return nil, err
	}

	before, err := s.engine.GetRun(params.RunID)
	if err != nil {
		return failure(err), nil
	}
	stepNumber := before.CurrentStep

	result := sop.StepResult{StepNumber: stepNumber, Status: status, Output: params.Output, StartedAt: s.clock.Now(), CompletedAt: s.clock.Now()}
	action, err := s.engine.AdvanceStep(params.RunID, result)
	if err != nil {
		return failure(err), nil
	}

	if run, getErr := s.engine.GetRun(params.RunID); getErr == nil {
		s.audit.LogStepResult(run, stepNumber)
		if action.Kind == sop.ActionCompleted || action.Kind == sop.ActionFailed {
			s.audit.LogRunComplete(run)
			if mErr := s.metrics.RecordRunComplete(run); mErr != nil {
				s.log.Warn("toolsurface: record_run_complete failed", "run_id", run.RunID, "error", mErr)
			}
		}
	}

	return success(renderAction(action)), nil
}

func parseStepStatus(raw string) (sop.StepStatus, error) {
	switch raw {
	case string(sop.StepCompleted), string(sop.StepFailed), string(sop.StepSkipped):
		return sop.StepStatus(raw), nil
	default:
		return "", &zcerrors.ParamInvalidError{Field: "status", Reason: fmt.Sprintf("must be one of completed|failed|skipped, got %q", raw)}
	}
}

// ApproveParams are the sop_approve tool's parameters.
type ApproveParams struct {
	RunID string `json:"run_id"`
}

// Approve calls approve_step, writes an approval audit record, and calls
// metrics.RecordApproval before returning, so the pending-approval
// correlation with the eventual RecordRunComplete holds.
func (s *Surface) Approve(params ApproveParams) (*Result, error) {
	if params.RunID == "" {
		return nil, &zcerrors.ParamInvalidError{Field: "run_id", Reason: "must not be empty"}
	}

	before, err := s.engine.GetRun(params.RunID)
	if err != nil {
		return failure(err), nil
	}
	stepNumber := before.CurrentStep

	action, err := s.engine.ApproveStep(params.RunID)
	if err != nil {
		return failure(err), nil
	}

	if run, getErr := s.engine.GetRun(params.RunID); getErr == nil {
		s.audit.LogApproval(run, stepNumber)
	}
	if err := s.metrics.RecordApproval(before.SopName, params.RunID); err != nil {
		s.log.Warn("toolsurface: record_approval failed", "run_id", params.RunID, "error", err)
	}

	return success(renderAction(action)), nil
}

// StatusParams are the sop_status tool's parameters. Both fields are
// optional.
type StatusParams struct {
	RunID   string `json:"run_id,omitempty"`
	SopName string `json:"sop_name,omitempty"`
}

// Status is a pure read: a single run's full summary if run_id is given,
// otherwise active runs (optionally filtered by sop_name) followed by the
// most recent 10 finished runs in reverse chronological order.
func (s *Surface) Status(params StatusParams) (*Result, error) {
	if params.RunID != "" {
		run, err := s.engine.GetRun(params.RunID)
		if err != nil {
			return failure(err), nil
		}
		return success(renderRunSummary(run)), nil
	}

	active := s.engine.ActiveRuns(params.SopName)
	finished := s.engine.FinishedRuns(params.SopName)
	sort.Slice(finished, func(i, j int) bool { return finished[i].RunID > finished[j].RunID })
	if len(finished) > 10 {
		finished = finished[:10]
	}

	return success(renderRunList(active, finished)), nil
}
