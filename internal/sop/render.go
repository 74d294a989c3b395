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
	"fmt"
	"strings"
)

// renderContext builds the human-readable instruction block for ExecuteStep
// and WaitApproval actions, per spec.md §4.1: SOP name + version, step
// N/total, title, body, suggested tools, and — if a payload is present —
// the payload string verbatim, so downstream consumers can search for it.
func renderContext(def *Definition, step *StepDefinition, event Event) string {
	var b strings.Builder

	fmt.Fprintf(&b, "SOP: %s (v%s)\n", def.Name, def.Version)
	fmt.Fprintf(&b, "Step %d/%d: %s\n", step.Number, def.TotalSteps(), step.Title)
	b.WriteString("\n")
	b.WriteString(step.Body)
	b.WriteString("\n")

	if len(step.SuggestedTools) > 0 {
		fmt.Fprintf(&b, "\nSuggested tools: %s\n", strings.Join(step.SuggestedTools, ", "))
	}

	if event.Payload != "" {
		fmt.Fprintf(&b, "\nPayload: %s\n", event.Payload)
	}

	return b.String()
}
