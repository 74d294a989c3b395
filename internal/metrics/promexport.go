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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// promMirror increments Prometheus counters alongside (never instead of)
// the in-memory Counters on every push-API call. It is an additional read
// path for scrape-based dashboards; the dotted-name query grammar remains
// the source of truth.
var promMirror = struct {
	runsCompleted        *prometheus.CounterVec
	runsFailed           *prometheus.CounterVec
	runsCancelled        *prometheus.CounterVec
	stepsExecuted        *prometheus.CounterVec
	stepsFailed          *prometheus.CounterVec
	stepsSkipped         *prometheus.CounterVec
	humanApprovals       *prometheus.CounterVec
	timeoutAutoApprovals *prometheus.CounterVec
}{
	runsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeroclaw_sop_runs_completed_total",
		Help: "Total SOP runs that completed successfully, by sop_name.",
	}, []string{"sop_name"}),
	runsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeroclaw_sop_runs_failed_total",
		Help: "Total SOP runs that terminated with a failed step, by sop_name.",
	}, []string{"sop_name"}),
	runsCancelled: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeroclaw_sop_runs_cancelled_total",
		Help: "Total SOP runs that were cancelled, by sop_name.",
	}, []string{"sop_name"}),
	stepsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeroclaw_sop_steps_executed_total",
		Help: "Total SOP steps that reached a terminal per-step status, by sop_name.",
	}, []string{"sop_name"}),
	stepsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeroclaw_sop_steps_failed_total",
		Help: "Total SOP steps reported failed, by sop_name.",
	}, []string{"sop_name"}),
	stepsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeroclaw_sop_steps_skipped_total",
		Help: "Total SOP steps reported skipped, by sop_name.",
	}, []string{"sop_name"}),
	humanApprovals: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeroclaw_sop_human_approvals_total",
		Help: "Total human approval events, by sop_name.",
	}, []string{"sop_name"}),
	timeoutAutoApprovals: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeroclaw_sop_timeout_auto_approvals_total",
		Help: "Total approvals that auto-fired after timeout, by sop_name.",
	}, []string{"sop_name"}),
}

// mirrorApproval increments the Prometheus approval counter for sopName.
func mirrorApproval(sopName string) {
	promMirror.humanApprovals.WithLabelValues(sopName).Inc()
}

// mirrorTimeoutApproval increments the Prometheus timeout-approval counter
// for sopName.
func mirrorTimeoutApproval(sopName string) {
	promMirror.timeoutAutoApprovals.WithLabelValues(sopName).Inc()
}

// mirrorRunComplete increments the Prometheus run/step counters for the
// terminal run described by snap.
func mirrorRunComplete(snap RunSnapshot) {
	switch snap.Status {
	case "completed":
		promMirror.runsCompleted.WithLabelValues(snap.SopName).Inc()
	case "failed":
		promMirror.runsFailed.WithLabelValues(snap.SopName).Inc()
	case "cancelled":
		promMirror.runsCancelled.WithLabelValues(snap.SopName).Inc()
	}
	promMirror.stepsExecuted.WithLabelValues(snap.SopName).Add(float64(snap.StepsExecuted))
	promMirror.stepsFailed.WithLabelValues(snap.SopName).Add(float64(snap.StepsFailed))
	promMirror.stepsSkipped.WithLabelValues(snap.SopName).Add(float64(snap.StepsSkipped))
}
