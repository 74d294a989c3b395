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
	"fmt"
	"log/slog"
	"strings"

	"github.com/joyshmitz/zeroclaw/internal/audit"
	"github.com/joyshmitz/zeroclaw/internal/clock"
	"github.com/joyshmitz/zeroclaw/internal/memstore"
	"github.com/joyshmitz/zeroclaw/internal/sop"
)

// WarmStart rebuilds an Aggregator from every entry the Audit Sink has
// recorded, in the three passes spec'd for the "sop" category:
//
//  1. parse every sop_run_* entry whose deserialised status is terminal,
//     indexed by run id.
//  2. fold each terminal run into the run/step counters (global + per-SOP)
//     and its RunSnapshot into the recent-runs ring, tagging the approval
//     flags from any approval/timeout-approval record correlated by run id.
//  3. separately count every approval/timeout-approval event — including
//     ones whose run never reached terminal — into the all-time counters,
//     so totals are conservative and never undercount.
//
// A failure to decode a single entry is skipped, not fatal; a failure to
// list the category at all is returned to the caller.
func WarmStart(backend memstore.Backend, clk clock.Clock, logger *slog.Logger) (*Aggregator, error) {
	entries, err := backend.List("sop", 0)
	if err != nil {
		return nil, fmt.Errorf("metrics: warm-start list failed: %w", err)
	}

	agg := New(clk)

	terminal := make(map[string]*sop.Run)
	approvedRuns := make(map[string]bool)
	timeoutApprovedRuns := make(map[string]bool)

	var approvalEvents []*sop.Run
	var timeoutApprovalEvents []*sop.Run

	for _, entry := range entries {
		run, err := audit.DecodeRun(entry.Content)
		if err != nil {
			logger.Warn("metrics: warm-start skipped unparseable entry", "key", entry.Key, "error", err)
			continue
		}

		switch {
		case strings.HasPrefix(entry.Key, audit.KeyPrefixes.Run):
			if run.Status.IsTerminal() {
				terminal[run.RunID] = run
			}
		case strings.HasPrefix(entry.Key, audit.KeyPrefixes.Approval):
			approvalEvents = append(approvalEvents, run)
		case strings.HasPrefix(entry.Key, audit.KeyPrefixes.TimeoutApprove):
			timeoutApprovalEvents = append(timeoutApprovalEvents, run)
		}
	}

	// Pass 2: correlate approvals against known terminal runs.
	for _, run := range approvalEvents {
		if _, ok := terminal[run.RunID]; ok {
			approvedRuns[run.RunID] = true
		}
	}
	for _, run := range timeoutApprovalEvents {
		if _, ok := terminal[run.RunID]; ok {
			timeoutApprovedRuns[run.RunID] = true
		}
	}
	for runID, run := range terminal {
		snap := snapshotFromRun(run, approvedRuns[runID], timeoutApprovedRuns[runID])
		agg.state.Global.pushSnapshot(snap)
		agg.state.counters(run.SopName).pushSnapshot(snap)
	}

	// Pass 3: count every approval/timeout-approval event, correlated or
	// not, into the all-time counters.
	for _, run := range approvalEvents {
		agg.state.Global.HumanApprovals++
		agg.state.counters(run.SopName).HumanApprovals++
	}
	for _, run := range timeoutApprovalEvents {
		agg.state.Global.TimeoutAutoApprovals++
		agg.state.counters(run.SopName).TimeoutAutoApprovals++
	}

	return agg, nil
}
