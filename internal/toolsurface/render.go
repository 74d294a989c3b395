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

package toolsurface

import (
	"fmt"
	"strings"

	"github.com/joyshmitz/zeroclaw/internal/sop"
)

// renderAction turns an engine Action into the tool-surface's plain-text
// output, matching the phrases spec'd scenarios assert on ("waiting for
// approval", "completed successfully", "failed").
func renderAction(action sop.Action) string {
	switch action.Kind {
	case sop.ActionExecuteStep:
		return fmt.Sprintf("%s\nrun_id: %s", action.Context, action.RunID)
	case sop.ActionWaitApproval:
		return fmt.Sprintf("%s\nrun_id: %s\nwaiting for approval", action.Context, action.RunID)
	case sop.ActionCompleted:
		return fmt.Sprintf("run %s completed successfully", action.RunID)
	case sop.ActionFailed:
		return fmt.Sprintf("run %s failed: %s", action.RunID, action.Reason)
	default:
		return fmt.Sprintf("run %s: unrecognised action", action.RunID)
	}
}

// renderRunSummary renders a full field-by-field run summary, including
// per-step results.
func renderRunSummary(run *sop.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run_id: %s\n", run.RunID)
	fmt.Fprintf(&b, "sop_name: %s\n", run.SopName)
	fmt.Fprintf(&b, "status: %s\n", run.Status)
	fmt.Fprintf(&b, "current_step: %d/%d\n", run.CurrentStep, run.TotalSteps)
	fmt.Fprintf(&b, "started_at: %s\n", run.StartedAt.Format("2006-01-02T15:04:05Z"))
	if run.CompletedAt != nil {
		fmt.Fprintf(&b, "completed_at: %s\n", run.CompletedAt.Format("2006-01-02T15:04:05Z"))
	}
	for _, r := range run.StepResults {
		fmt.Fprintf(&b, "step %d: %s (%s)\n", r.StepNumber, r.Status, r.Output)
	}
	return b.String()
}

// renderRunList renders active runs followed by the most recent finished
// runs, one line each.
func renderRunList(active, finished []*sop.Run) string {
	var b strings.Builder
	b.WriteString("active runs:\n")
	for _, r := range active {
		fmt.Fprintf(&b, "  %s [%s] %s step %d/%d\n", r.RunID, r.SopName, r.Status, r.CurrentStep, r.TotalSteps)
	}
	b.WriteString("recent finished runs:\n")
	for _, r := range finished {
		fmt.Fprintf(&b, "  %s [%s] %s\n", r.RunID, r.SopName, r.Status)
	}
	return b.String()
}
