package toolsurface_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joyshmitz/zeroclaw/internal/audit"
	"github.com/joyshmitz/zeroclaw/internal/clock"
	"github.com/joyshmitz/zeroclaw/internal/memstore"
	"github.com/joyshmitz/zeroclaw/internal/metrics"
	"github.com/joyshmitz/zeroclaw/internal/sop"
	"github.com/joyshmitz/zeroclaw/internal/toolsurface"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestSurface(t *testing.T, defs ...*sop.Definition) (*toolsurface.Surface, *clock.Fixed, *metrics.Aggregator) {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	engine := sop.New(clk, defs...)
	backend := memstore.NewInMemory()
	sink := audit.New(backend, clk, discardLogger())
	agg := metrics.New(clk)
	return toolsurface.New(engine, sink, agg, clk, discardLogger()), clk, agg
}

func autoTwoStepDemo() *sop.Definition {
	return &sop.Definition{
		Name:          "demo",
		Version:       "1",
		ExecutionMode: sop.ModeAuto,
		Steps: []sop.StepDefinition{
			{Number: 1, Title: "First", Body: "do the first thing"},
			{Number: 2, Title: "Second", Body: "do the second thing"},
		},
	}
}

func TestScenarioAAutoTwoStepCompletion(t *testing.T) {
	surface, _, agg := newTestSurface(t, autoTwoStepDemo())

	execResult, err := surface.Execute(toolsurface.ExecuteParams{Name: "demo"})
	require.NoError(t, err)
	require.True(t, execResult.Success)
	assert.Contains(t, execResult.Output, "run-000001")
	assert.Contains(t, execResult.Output, "do the first thing")

	adv1, err := surface.Advance(toolsurface.AdvanceParams{RunID: "run-000001", Status: "completed", Output: "ok"})
	require.NoError(t, err)
	assert.Contains(t, adv1.Output, "do the second thing")

	adv2, err := surface.Advance(toolsurface.AdvanceParams{RunID: "run-000001", Status: "completed", Output: "ok"})
	require.NoError(t, err)
	assert.Contains(t, adv2.Output, "completed successfully")

	v, _, _ := agg.GetMetricValue("sop.runs_completed")
	assert.Equal(t, float64(1), v)
	v, _, _ = agg.GetMetricValue("sop.deviation_rate")
	assert.Equal(t, float64(0), v)
	v, _, _ = agg.GetMetricValue("sop.completion_rate")
	assert.Equal(t, float64(1), v)
}

func TestScenarioBSupervisedApproval(t *testing.T) {
	def := autoTwoStepDemo()
	def.ExecutionMode = sop.ModeSupervised
	surface, _, agg := newTestSurface(t, def)

	execResult, err := surface.Execute(toolsurface.ExecuteParams{Name: "demo"})
	require.NoError(t, err)
	assert.Contains(t, execResult.Output, "waiting for approval")

	approveResult, err := surface.Approve(toolsurface.ApproveParams{RunID: "run-000001"})
	require.NoError(t, err)
	assert.True(t, approveResult.Success)

	v, _, _ := agg.GetMetricValue("sop.human_intervention_count")
	assert.Equal(t, float64(1), v)
}

func TestScenarioEExecuteRefusedDuringCooldown(t *testing.T) {
	def := autoTwoStepDemo()
	def.Steps = def.Steps[:1]
	def.CooldownSecs = 60
	surface, clk, _ := newTestSurface(t, def)

	_, err := surface.Execute(toolsurface.ExecuteParams{Name: "demo"})
	require.NoError(t, err)
	_, err = surface.Advance(toolsurface.AdvanceParams{RunID: "run-000001", Status: "completed", Output: "ok"})
	require.NoError(t, err)

	clk.Advance(5 * time.Second)
	result, err := surface.Execute(toolsurface.ExecuteParams{Name: "demo"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "cooldown")
}

func TestExecuteHardRejectsMissingName(t *testing.T) {
	surface, _, _ := newTestSurface(t, autoTwoStepDemo())
	_, err := surface.Execute(toolsurface.ExecuteParams{})
	assert.Error(t, err)
}

func TestAdvanceHardRejectsBadStatusString(t *testing.T) {
	surface, _, _ := newTestSurface(t, autoTwoStepDemo())
	_, err := surface.Execute(toolsurface.ExecuteParams{Name: "demo"})
	require.NoError(t, err)

	_, err = surface.Advance(toolsurface.AdvanceParams{RunID: "run-000001", Status: "bogus", Output: "x"})
	assert.Error(t, err)
}

func TestStatusListsActiveAndFinished(t *testing.T) {
	surface, _, _ := newTestSurface(t, autoTwoStepDemo())
	_, err := surface.Execute(toolsurface.ExecuteParams{Name: "demo"})
	require.NoError(t, err)

	result, err := surface.Status(toolsurface.StatusParams{})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "run-000001")
}

func TestStatusUnknownRunReturnsDomainFailureNotHardError(t *testing.T) {
	surface, _, _ := newTestSurface(t, autoTwoStepDemo())
	result, err := surface.Status(toolsurface.StatusParams{RunID: "run-999999"})
	require.NoError(t, err)
	assert.False(t, result.Success)
}
