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
	"sort"
	"strings"
	"time"
)

var windowSuffixes = map[string]time.Duration{
	"_7d":  7 * 24 * time.Hour,
	"_30d": 30 * 24 * time.Hour,
	"_90d": 90 * 24 * time.Hour,
}

// splitWindow strips a trailing _7d/_30d/_90d suffix from metric, returning
// the base metric name and the window duration (0 meaning all-time).
func splitWindow(metric string) (base string, window time.Duration) {
	for suffix, d := range windowSuffixes {
		if strings.HasSuffix(metric, suffix) {
			return strings.TrimSuffix(metric, suffix), d
		}
	}
	return metric, 0
}

// knownMetrics is the closed set of base metric names the query grammar
// recognises, used both to validate global-scope queries and to know when
// a "sop." prefix is actually a SOP name rather than a bare metric.
var knownMetrics = map[string]bool{
	"runs_completed":           true,
	"runs_failed":              true,
	"runs_cancelled":           true,
	"deviation_rate":           true,
	"protocol_adherence_rate":  true,
	"human_intervention_count": true,
	"human_intervention_rate":  true,
	"timeout_auto_approvals":   true,
	"timeout_approval_rate":    true,
	"completion_rate":          true,
}

// resolve implements the "sop." [ sop_name "." ] metric [ "_" window ]
// grammar, trying global first, then the longest-prefix-matching SOP name.
// Windowed variants are evaluated relative to now.
func resolve(state *CollectorState, name string, now time.Time) (float64, bool) {
	const topPrefix = "sop."
	if !strings.HasPrefix(name, topPrefix) {
		return 0, false
	}
	rest := strings.TrimPrefix(name, topPrefix)

	if base, window := splitWindow(rest); knownMetrics[base] {
		return compute(&state.Global, base, window, now), true
	}

	sopNames := make([]string, 0, len(state.PerSOP))
	for n := range state.PerSOP {
		sopNames = append(sopNames, n)
	}
	sort.Slice(sopNames, func(i, j int) bool { return len(sopNames[i]) > len(sopNames[j]) })

	for _, sopName := range sopNames {
		prefix := sopName + "."
		if !strings.HasPrefix(rest, prefix) {
			continue
		}
		metric := strings.TrimPrefix(rest, prefix)
		base, window := splitWindow(metric)
		if !knownMetrics[base] {
			continue
		}
		return compute(state.PerSOP[sopName], base, window, now), true
	}

	return 0, false
}

// windowTotals is the subset of Counters fields a windowed query needs,
// recomputed from RecentRuns rather than the all-time running totals.
type windowTotals struct {
	runsCompleted, runsFailed, runsCancelled       uint64
	stepsExecuted, stepsDefined                     uint64
	stepsFailed, stepsSkipped                       uint64
	humanApprovals, timeoutAutoApprovals            uint64
}

func windowedFrom(c *Counters, cutoff time.Time) windowTotals {
	var w windowTotals
	for _, snap := range c.RecentRuns {
		if snap.CompletedAt.Before(cutoff) {
			continue
		}
		switch snap.Status {
		case "completed":
			w.runsCompleted++
		case "failed":
			w.runsFailed++
		case "cancelled":
			w.runsCancelled++
		}
		w.stepsExecuted += uint64(snap.StepsExecuted)
		w.stepsDefined += uint64(snap.StepsDefined)
		w.stepsFailed += uint64(snap.StepsFailed)
		w.stepsSkipped += uint64(snap.StepsSkipped)
		if snap.HadHumanApproval {
			w.humanApprovals++
		}
		if snap.HadTimeoutApproval {
			w.timeoutAutoApprovals++
		}
	}
	return w
}

// compute evaluates base against c, either all-time (window == 0) or over
// the subset of RecentRuns within window of now.
func compute(c *Counters, base string, window time.Duration, now time.Time) float64 {
	var runsCompleted, runsFailed, runsCancelled float64
	var stepsExecuted, stepsDefined, stepsFailed, stepsSkipped float64
	var humanApprovals, timeoutAutoApprovals float64

	if window == 0 {
		runsCompleted = float64(c.RunsCompleted)
		runsFailed = float64(c.RunsFailed)
		runsCancelled = float64(c.RunsCancelled)
		stepsExecuted = float64(c.StepsExecuted)
		stepsDefined = float64(c.StepsDefined)
		stepsFailed = float64(c.StepsFailed)
		stepsSkipped = float64(c.StepsSkipped)
		humanApprovals = float64(c.HumanApprovals)
		timeoutAutoApprovals = float64(c.TimeoutAutoApprovals)
	} else {
		w := windowedFrom(c, now.Add(-window))
		runsCompleted = float64(w.runsCompleted)
		runsFailed = float64(w.runsFailed)
		runsCancelled = float64(w.runsCancelled)
		stepsExecuted = float64(w.stepsExecuted)
		stepsDefined = float64(w.stepsDefined)
		stepsFailed = float64(w.stepsFailed)
		stepsSkipped = float64(w.stepsSkipped)
		humanApprovals = float64(w.humanApprovals)
		timeoutAutoApprovals = float64(w.timeoutAutoApprovals)
	}

	switch base {
	case "runs_completed":
		return runsCompleted
	case "runs_failed":
		return runsFailed
	case "runs_cancelled":
		return runsCancelled
	case "deviation_rate":
		if stepsExecuted == 0 {
			return 0
		}
		return (stepsFailed + stepsSkipped) / stepsExecuted
	case "protocol_adherence_rate":
		if stepsDefined == 0 {
			return 0
		}
		v := (stepsExecuted - stepsFailed - stepsSkipped) / stepsDefined
		if v < 0 {
			return 0
		}
		return v
	case "human_intervention_count":
		return humanApprovals
	case "human_intervention_rate":
		return humanApprovals / maxf(1, runsCompleted)
	case "timeout_auto_approvals":
		return timeoutAutoApprovals
	case "timeout_approval_rate":
		return timeoutAutoApprovals / maxf(1, runsCompleted)
	case "completion_rate":
		return runsCompleted / maxf(1, runsCompleted+runsFailed+runsCancelled)
	default:
		return 0
	}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
