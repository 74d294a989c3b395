package metrics_test

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
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completedRun(runID, sopName string, completedAt time.Time, results ...sop.StepResult) *sop.Run {
	return &sop.Run{
		RunID:       runID,
		SopName:     sopName,
		Status:      sop.StatusCompleted,
		TotalSteps:  len(results),
		CompletedAt: &completedAt,
		StepResults: results,
	}
}

func TestScenarioATwoStepCompletion(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	agg := metrics.New(clk)

	run := completedRun("run-000001", "demo", clk.Now(),
		sop.StepResult{StepNumber: 1, Status: sop.StepCompleted},
		sop.StepResult{StepNumber: 2, Status: sop.StepCompleted},
	)
	require.NoError(t, agg.RecordRunComplete(run))

	v, ok, err := agg.GetMetricValue("sop.runs_completed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(1), v)

	v, _, _ = agg.GetMetricValue("sop.deviation_rate")
	assert.Equal(t, float64(0), v)

	v, _, _ = agg.GetMetricValue("sop.completion_rate")
	assert.Equal(t, float64(1), v)
}

func TestScenarioBHumanApprovalCounted(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	agg := metrics.New(clk)

	require.NoError(t, agg.RecordApproval("demo", "run-000001"))
	v, _, _ := agg.GetMetricValue("sop.human_intervention_count")
	assert.Equal(t, float64(1), v)

	run := completedRun("run-000001", "demo", clk.Now(), sop.StepResult{StepNumber: 1, Status: sop.StepCompleted})
	require.NoError(t, agg.RecordRunComplete(run))

	v, _, _ = agg.GetMetricValue("sop.human_intervention_count_7d")
	assert.Equal(t, float64(1), v)
}

func TestScenarioCProtocolAdherenceRate(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	agg := metrics.New(clk)

	run := &sop.Run{
		RunID:       "run-000001",
		SopName:     "demo",
		Status:      sop.StatusFailed,
		TotalSteps:  3,
		CompletedAt: ptr(clk.Now()),
		StepResults: []sop.StepResult{
			{StepNumber: 1, Status: sop.StepCompleted},
			{StepNumber: 2, Status: sop.StepFailed},
		},
	}
	require.NoError(t, agg.RecordRunComplete(run))

	v, _, _ := agg.GetMetricValue("sop.runs_failed")
	assert.Equal(t, float64(1), v)

	v, _, _ = agg.GetMetricValue("sop.protocol_adherence_rate")
	assert.InDelta(t, 1.0/3.0, v, 1e-10)
}

func TestScenarioDLongestPrefixDisambiguation(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	agg := metrics.New(clk)

	require.NoError(t, agg.RecordRunComplete(completedRun("run-000001", "valve", clk.Now(), sop.StepResult{StepNumber: 1, Status: sop.StepCompleted})))
	failedShutdown := &sop.Run{RunID: "run-000002", SopName: "valve-shutdown", Status: sop.StatusFailed, TotalSteps: 1, CompletedAt: ptr(clk.Now()),
		StepResults: []sop.StepResult{{StepNumber: 1, Status: sop.StepFailed}}}
	require.NoError(t, agg.RecordRunComplete(failedShutdown))

	v, ok, err := agg.GetMetricValue("sop.valve-shutdown.runs_failed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(1), v)

	v, _, _ = agg.GetMetricValue("sop.valve.runs_completed")
	assert.Equal(t, float64(1), v)

	v, _, _ = agg.GetMetricValue("sop.valve.runs_failed")
	assert.Equal(t, float64(0), v)
}

func TestRateMetricsStayWithinUnitInterval(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	agg := metrics.New(clk)

	run := &sop.Run{RunID: "run-000001", SopName: "demo", Status: sop.StatusCompleted, TotalSteps: 2, CompletedAt: ptr(clk.Now()),
		StepResults: []sop.StepResult{{StepNumber: 1, Status: sop.StepSkipped}, {StepNumber: 2, Status: sop.StepCompleted}}}
	require.NoError(t, agg.RecordRunComplete(run))

	for _, name := range []string{"sop.completion_rate", "sop.deviation_rate", "sop.protocol_adherence_rate"} {
		v, ok, err := agg.GetMetricValue(name)
		require.NoError(t, err)
		require.True(t, ok)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestUnknownMetricNameIsNotOk(t *testing.T) {
	agg := metrics.New(clock.NewFixed(time.Now()))
	_, ok, err := agg.GetMetricValue("sop.not_a_real_metric")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWarmStartRoundTripMatchesLiveAggregator(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	backend := memstore.NewInMemory()
	sink := audit.New(backend, clk, discardLogger())
	live := metrics.New(clk)

	run := &sop.Run{RunID: "run-000001", SopName: "demo", Status: sop.StatusRunning, TotalSteps: 1, CurrentStep: 1}
	sink.LogRunStart(run)

	require.NoError(t, live.RecordApproval("demo", run.RunID))
	sink.LogApproval(run, 1)

	run.Status = sop.StatusCompleted
	now := clk.Now()
	run.CompletedAt = &now
	run.StepResults = []sop.StepResult{{StepNumber: 1, Status: sop.StepCompleted}}
	sink.LogRunComplete(run)
	require.NoError(t, live.RecordRunComplete(run))

	rebuilt, err := metrics.WarmStart(backend, clk, discardLogger())
	require.NoError(t, err)

	for _, name := range []string{"sop.runs_completed", "sop.human_intervention_count", "sop.demo.runs_completed"} {
		liveVal, _, _ := live.GetMetricValue(name)
		rebuiltVal, _, _ := rebuilt.GetMetricValue(name)
		assert.Equal(t, liveVal, rebuiltVal, name)
	}
}

func TestWarmStartSkipsUnparseableEntries(t *testing.T) {
	backend := memstore.NewInMemory()
	require.NoError(t, backend.Append(memstore.Record{Category: "sop", Key: "sop_run_garbage", Content: []byte("not json")}))

	agg, err := metrics.WarmStart(backend, clock.NewFixed(time.Now()), discardLogger())
	require.NoError(t, err)
	v, _, _ := agg.GetMetricValue("sop.runs_completed")
	assert.Equal(t, float64(0), v)
}

func ptr(t time.Time) *time.Time { return &t }
