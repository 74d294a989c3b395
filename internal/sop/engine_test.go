package sop_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joyshmitz/zeroclaw/internal/clock"
	"github.com/joyshmitz/zeroclaw/internal/sop"
	sopErrors "github.com/joyshmitz/zeroclaw/pkg/errors"
)

func twoStepAuto() *sop.Definition {
	return &sop.Definition{
		Name:          "restart-worker",
		Version:       "1",
		ExecutionMode: sop.ModeAuto,
		Steps: []sop.StepDefinition{
			{Number: 1, Title: "Check health", Body: "curl the health endpoint"},
			{Number: 2, Title: "Restart", Body: "restart the worker process"},
		},
	}
}

func supervisedOneStep() *sop.Definition {
	return &sop.Definition{
		Name:          "rotate-secret",
		Version:       "1",
		ExecutionMode: sop.ModeSupervised,
		Steps: []sop.StepDefinition{
			{Number: 1, Title: "Rotate", Body: "rotate the credential"},
		},
	}
}

func TestStartRunAutoModeExecutesFirstStepImmediately(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := sop.New(clk, twoStepAuto())

	action, err := e.StartRun("restart-worker", sop.Event{Source: sop.SourceManual})
	require.NoError(t, err)
	assert.Equal(t, sop.ActionExecuteStep, action.Kind)
	assert.Equal(t, 1, action.StepNumber)
	assert.Contains(t, action.Context, "Step 1/2: Check health")

	run, err := e.GetRun(action.RunID)
	require.NoError(t, err)
	assert.Equal(t, sop.StatusRunning, run.Status)
}

func TestTwoStepRunCompletesAfterBothStepsSucceed(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := sop.New(clk, twoStepAuto())

	start, err := e.StartRun("restart-worker", sop.Event{Source: sop.SourceManual})
	require.NoError(t, err)

	next, err := e.AdvanceStep(start.RunID, sop.StepResult{StepNumber: 1, Status: sop.StepCompleted})
	require.NoError(t, err)
	assert.Equal(t, sop.ActionExecuteStep, next.Kind)
	assert.Equal(t, 2, next.StepNumber)

	done, err := e.AdvanceStep(start.RunID, sop.StepResult{StepNumber: 2, Status: sop.StepCompleted})
	require.NoError(t, err)
	assert.Equal(t, sop.ActionCompleted, done.Kind)

	run, err := e.GetRun(start.RunID)
	require.NoError(t, err)
	assert.Equal(t, sop.StatusCompleted, run.Status)
	assert.Len(t, run.StepResults, 2)
	require.NotNil(t, run.CompletedAt)
}

func TestSupervisedRunWaitsForApproval(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := sop.New(clk, supervisedOneStep())

	start, err := e.StartRun("rotate-secret", sop.Event{Source: sop.SourceManual})
	require.NoError(t, err)
	assert.Equal(t, sop.ActionWaitApproval, start.Kind)

	run, err := e.GetRun(start.RunID)
	require.NoError(t, err)
	assert.Equal(t, sop.StatusWaitingApproval, run.Status)
	require.NotNil(t, run.WaitingSince)

	approved, err := e.ApproveStep(start.RunID)
	require.NoError(t, err)
	assert.Equal(t, sop.ActionExecuteStep, approved.Kind)

	run, err = e.GetRun(start.RunID)
	require.NoError(t, err)
	assert.Equal(t, sop.StatusRunning, run.Status)
	assert.Nil(t, run.WaitingSince)
}

func TestApproveStepRejectsRunNotWaiting(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := sop.New(clk, twoStepAuto())

	start, err := e.StartRun("restart-worker", sop.Event{Source: sop.SourceManual})
	require.NoError(t, err)

	_, err = e.ApproveStep(start.RunID)
	require.Error(t, err)
	var invalid *sopErrors.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestFailedStepTerminatesRun(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := sop.New(clk, twoStepAuto())

	start, err := e.StartRun("restart-worker", sop.Event{Source: sop.SourceManual})
	require.NoError(t, err)

	failed, err := e.AdvanceStep(start.RunID, sop.StepResult{StepNumber: 1, Status: sop.StepFailed, Output: "health check timed out"})
	require.NoError(t, err)
	assert.Equal(t, sop.ActionFailed, failed.Kind)
	assert.Equal(t, "health check timed out", failed.Reason)

	run, err := e.GetRun(start.RunID)
	require.NoError(t, err)
	assert.Equal(t, sop.StatusFailed, run.Status)
	assert.Empty(t, e.ActiveRuns("restart-worker"))
}

func TestCooldownRefusesRestartWithinWindow(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	def := twoStepAuto()
	def.CooldownSecs = 300
	e := sop.New(clk, def)

	start, err := e.StartRun("restart-worker", sop.Event{Source: sop.SourceManual})
	require.NoError(t, err)
	_, err = e.AdvanceStep(start.RunID, sop.StepResult{StepNumber: 1, Status: sop.StepCompleted})
	require.NoError(t, err)
	_, err = e.AdvanceStep(start.RunID, sop.StepResult{StepNumber: 2, Status: sop.StepCompleted})
	require.NoError(t, err)

	clk.Advance(60 * time.Second)
	_, err = e.StartRun("restart-worker", sop.Event{Source: sop.SourceManual})
	require.Error(t, err)
	var cooldown *sopErrors.CooldownActiveError
	require.ErrorAs(t, err, &cooldown)
	assert.InDelta(t, 240, cooldown.RemainingSecs, 1)

	clk.Advance(241 * time.Second)
	_, err = e.StartRun("restart-worker", sop.Event{Source: sop.SourceManual})
	assert.NoError(t, err)
}

func TestConcurrencyLimitRejectsExtraRun(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	def := twoStepAuto()
	def.MaxConcurrent = 1
	e := sop.New(clk, def)

	_, err := e.StartRun("restart-worker", sop.Event{Source: sop.SourceManual})
	require.NoError(t, err)

	_, err = e.StartRun("restart-worker", sop.Event{Source: sop.SourceManual})
	require.Error(t, err)
	var limit *sopErrors.ConcurrencyLimitError
	assert.ErrorAs(t, err, &limit)
}

func TestStartRunUnknownSop(t *testing.T) {
	e := sop.New(clock.NewFixed(time.Now()))
	_, err := e.StartRun("does-not-exist", sop.Event{Source: sop.SourceManual})
	require.Error(t, err)
	var unknown *sopErrors.UnknownSopError
	assert.ErrorAs(t, err, &unknown)
}

func TestAdvanceStepRejectsOutOfOrderStepNumber(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := sop.New(clk, twoStepAuto())

	start, err := e.StartRun("restart-worker", sop.Event{Source: sop.SourceManual})
	require.NoError(t, err)

	_, err = e.AdvanceStep(start.RunID, sop.StepResult{StepNumber: 2, Status: sop.StepCompleted})
	require.Error(t, err)
	var invalid *sopErrors.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestAdvanceStepUnknownRun(t *testing.T) {
	e := sop.New(clock.NewFixed(time.Now()), twoStepAuto())
	_, err := e.AdvanceStep("run-999999", sop.StepResult{StepNumber: 1, Status: sop.StepCompleted})
	require.Error(t, err)
	var unknown *sopErrors.UnknownRunError
	assert.ErrorAs(t, err, &unknown)
}

func TestZeroStepSopCompletesImmediately(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := sop.New(clk, &sop.Definition{Name: "noop", Version: "1", ExecutionMode: sop.ModeAuto})

	action, err := e.StartRun("noop", sop.Event{Source: sop.SourceManual})
	require.NoError(t, err)
	assert.Equal(t, sop.ActionCompleted, action.Kind)

	run, err := e.GetRun(action.RunID)
	require.NoError(t, err)
	assert.Equal(t, sop.StatusCompleted, run.Status)
}

func TestStepRequiringConfirmationWaitsEvenInAutoMode(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	def := twoStepAuto()
	def.Steps[0].RequiresConfirmation = true
	e := sop.New(clk, def)

	action, err := e.StartRun("restart-worker", sop.Event{Source: sop.SourceManual})
	require.NoError(t, err)
	assert.Equal(t, sop.ActionWaitApproval, action.Kind)
}

func TestFinishedRunsFIFOCapEvictsOldest(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	def := &sop.Definition{Name: "noop", Version: "1", ExecutionMode: sop.ModeAuto}
	e := sop.New(clk, def)

	var firstRunID string
	for i := 0; i < sop.MinFinishedRetention+5; i++ {
		action, err := e.StartRun("noop", sop.Event{Source: sop.SourceManual})
		require.NoError(t, err)
		if i == 0 {
			firstRunID = action.RunID
		}
		clk.Advance(time.Second)
	}

	assert.Len(t, e.FinishedRuns("noop"), sop.MinFinishedRetention)
	_, err := e.GetRun(firstRunID)
	assert.Error(t, err)
}

func TestPayloadAppearsVerbatimInRenderedContext(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := sop.New(clk, twoStepAuto())

	action, err := e.StartRun("restart-worker", sop.Event{Source: sop.SourceChannel, Payload: "worker-7 unresponsive"})
	require.NoError(t, err)
	assert.Contains(t, action.Context, "Payload: worker-7 unresponsive")
}
