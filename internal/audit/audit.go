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

// Package audit implements the Audit Sink (C2): an append-only, categorised
// projection of engine state into a memstore.Backend, used for post-hoc
// inspection and for rebuilding the metrics aggregator on warm-start.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joyshmitz/zeroclaw/internal/clock"
	"github.com/joyshmitz/zeroclaw/internal/memstore"
	"github.com/joyshmitz/zeroclaw/internal/sop"
)

// category is the single memstore category every SOP audit record is
// written under; key prefixes (below) distinguish record kinds within it.
const category = "sop"

const (
	prefixRun            = "sop_run_"
	prefixStep           = "sop_step_"
	prefixApproval       = "sop_approval_"
	prefixTimeoutApprove = "sop_timeout_approve_"
)

// Envelope wraps every persisted record with a fresh UUID record_id,
// distinct from the run id, so two writes under the same key can be told
// apart. The record_id is stored only in the envelope; the sink's log lines
// do not include it.
type Envelope struct {
	RecordID string          `json:"record_id"`
	Run      json.RawMessage `json:"run"`
}

// Sink appends categorised records describing SOP Engine activity. All
// writes are fire-and-forget from the caller's point of view: failures are
// logged at warn and never returned as fatal errors, per spec.
type Sink struct {
	backend memstore.Backend
	clock   clock.Clock
	log     *slog.Logger
}

// New returns a Sink writing through backend.
func New(backend memstore.Backend, clk clock.Clock, logger *slog.Logger) *Sink {
	return &Sink{backend: backend, clock: clk, log: logger}
}

func (s *Sink) write(key string, run *sop.Run) {
	body, err := json.Marshal(run)
	if err != nil {
		s.log.Warn("audit: marshal run snapshot failed", "key", key, "error", err)
		return
	}
	env := Envelope{RecordID: uuid.NewString(), Run: body}
	data, err := json.Marshal(env)
	if err != nil {
		s.log.Warn("audit: marshal envelope failed", "key", key, "error", err)
		return
	}

	rec := memstore.Record{Category: category, Key: key, Content: data, Timestamp: s.clock.Now()}
	if err := s.backend.Append(rec); err != nil {
		s.log.Warn("audit: append failed", "key", key, "error", err)
	}
}

// LogRunStart records the freshly registered run under sop_run_<id>.
func (s *Sink) LogRunStart(run *sop.Run) {
	s.write(prefixRun+run.RunID, run)
}

// LogRunComplete records the terminal run snapshot under sop_run_<id>,
// overwriting the start-time entry with the same key.
func (s *Sink) LogRunComplete(run *sop.Run) {
	s.write(prefixRun+run.RunID, run)
}

// LogStepResult records a run snapshot under sop_step_<id>_<n> after a
// successful advance_step. Step records hold the full run snapshot (not a
// bare SopStepResult) so warm-start can treat every prefix uniformly.
func (s *Sink) LogStepResult(run *sop.Run, stepNumber int) {
	s.write(fmt.Sprintf("%s%s_%d", prefixStep, run.RunID, stepNumber), run)
}

// LogApproval records a run snapshot under sop_approval_<id>_<n> when a
// human approves a step.
func (s *Sink) LogApproval(run *sop.Run, stepNumber int) {
	s.write(fmt.Sprintf("%s%s_%d", prefixApproval, run.RunID, stepNumber), run)
}

// LogTimeoutAutoApprove records a run snapshot under
// sop_timeout_approve_<id>_<n> when an approval auto-fires after timeout.
func (s *Sink) LogTimeoutAutoApprove(run *sop.Run, stepNumber int) {
	s.write(fmt.Sprintf("%s%s_%d", prefixTimeoutApprove, run.RunID, stepNumber), run)
}

// Entries returns up to limit raw records under the sop category, most
// recent first. Used by metrics warm-start.
func (s *Sink) Entries(limit int) ([]memstore.Record, error) {
	recs, err := s.backend.List(category, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list category %q: %w", category, err)
	}
	return recs, nil
}

// DecodeRun unmarshals a record's content into a run snapshot, returning
// an error the caller is expected to skip-and-continue on, per the
// warm-start "failure for one entry is non-fatal" rule.
func DecodeRun(content []byte) (*sop.Run, error) {
	var env Envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, fmt.Errorf("audit: decode envelope: %w", err)
	}
	var run sop.Run
	if err := json.Unmarshal(env.Run, &run); err != nil {
		return nil, fmt.Errorf("audit: decode run: %w", err)
	}
	return &run, nil
}

// KeyPrefixes exposes the four record-kind prefixes for callers (chiefly
// the metrics warm-start pass) that must branch on record kind.
var KeyPrefixes = struct {
	Run, Step, Approval, TimeoutApprove string
}{
	Run:            prefixRun,
	Step:           prefixStep,
	Approval:       prefixApproval,
	TimeoutApprove: prefixTimeoutApprove,
}
