package status

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressIsMonotonic(t *testing.T) {
	tracker := NewTracker(4, nil)

	tracker.RaiseProgress(0.75, "Companies identified", "Performing valuation", "companies")
	tracker.RaiseProgress(0.25, "Strategy information collected", "Researching companies", "strategy")

	st := tracker.Snapshot()
	assert.Equal(t, 0.75, st.Progress, "lower fraction must not regress progress")
	assert.Equal(t, "Companies identified", st.Message, "stale signal must not overwrite message")
	assert.Equal(t, "Performing valuation", st.CurrentTask)

	// Both task IDs are recorded even though only one moved the fraction.
	assert.Equal(t, []string{"companies", "strategy"}, st.CompletedTasks)
}

func TestRaiseProgressIdempotent(t *testing.T) {
	tracker := NewTracker(4, nil)

	for i := 0; i < 5; i++ {
		tracker.RaiseProgress(0.5, "Strategy report generated", "Analyzing financials", "report")
	}

	st := tracker.Snapshot()
	assert.Equal(t, 0.5, st.Progress)
	assert.Equal(t, []string{"report"}, st.CompletedTasks, "duplicate signals must collapse to one entry")
}

func TestRaiseProgressConcurrent(t *testing.T) {
	tracker := NewTracker(4, nil)

	signals := []struct {
		fraction float64
		taskID   string
	}{
		{0.25, "strategy"},
		{0.50, "report"},
		{0.75, "companies"},
		{1.0, "valuation"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		for _, sig := range signals {
			wg.Add(1)
			go func(fraction float64, taskID string) {
				defer wg.Done()
				tracker.RaiseProgress(fraction, "m", "t", taskID)
			}(sig.fraction, sig.taskID)
		}
	}
	wg.Wait()

	st := tracker.Snapshot()
	assert.Equal(t, 1.0, st.Progress)
	assert.Len(t, st.CompletedTasks, 4)
}

func TestMarkRunningStampsStartAndClearsError(t *testing.T) {
	tracker := NewTracker(4, nil)
	tracker.SetError("previous run failed")

	tracker.MarkRunning(true)

	st := tracker.Snapshot()
	assert.True(t, st.IsRunning)
	assert.False(t, st.StartTime.IsZero())
	assert.Empty(t, st.Error, "starting a run must clear the prior error")

	tracker.MarkRunning(false)
	assert.False(t, tracker.IsRunning())
}

func TestSetErrorSetsGenericMessage(t *testing.T) {
	tracker := NewTracker(4, nil)
	tracker.SetError("strategist stage failed: timeout")

	st := tracker.Snapshot()
	assert.Equal(t, "strategist stage failed: timeout", st.Error)
	assert.Equal(t, "Error during analysis", st.Message)
}

func TestCompleteAllForcesTerminalState(t *testing.T) {
	tracker := NewTracker(4, nil)
	tracker.MarkRunning(true)
	tracker.RaiseProgress(0.5, "Strategy report generated", "Analyzing financials", "report")

	tracker.CompleteAll("Analysis complete")

	st := tracker.Snapshot()
	assert.Equal(t, 1.0, st.Progress)
	assert.False(t, st.IsRunning)
	assert.Equal(t, "Analysis complete", st.Message)
}

func TestSnapshotIsDetachedCopy(t *testing.T) {
	tracker := NewTracker(4, nil)
	tracker.RaiseProgress(0.25, "Strategy information collected", "Researching companies", "strategy")

	st := tracker.Snapshot()
	st.CompletedTasks[0] = "tampered"
	st.Progress = 0

	fresh := tracker.Snapshot()
	assert.Equal(t, []string{"strategy"}, fresh.CompletedTasks)
	assert.Equal(t, 0.25, fresh.Progress)
}

func TestResetRestoresInitialState(t *testing.T) {
	tracker := NewTracker(4, nil)
	tracker.MarkRunning(true)
	tracker.RaiseProgress(1.0, "Valuation complete", "Analysis complete", "valuation")
	tracker.SetError("late failure")

	tracker.Reset()

	st := tracker.Snapshot()
	assert.Zero(t, st.Progress)
	assert.False(t, st.IsRunning)
	assert.Empty(t, st.Error)
	assert.Empty(t, st.CompletedTasks)
	assert.Equal(t, "Ready to start analysis", st.Message)
}

func TestPrometheusRecorderWiring(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := NewPrometheusRecorderWith(reg)
	tracker := NewTracker(4, recorder)

	tracker.MarkRunning(true)
	tracker.ObserveSignal("watcher", 0.25, "Strategy information collected", "Researching companies", "strategy")
	tracker.ObserveSignal("reconciler", 0.25, "Strategy information collected", "Researching companies", "strategy")
	tracker.SetError("boom")

	families, err := reg.Gather()
	require.NoError(t, err)

	found := make(map[string]bool)
	for _, fam := range families {
		found[fam.GetName()] = true
	}
	assert.True(t, found["advisor_pipeline_progress_fraction"])
	assert.True(t, found["advisor_pipeline_running"])
	assert.True(t, found["advisor_artifact_signals_total"])
	assert.True(t, found["advisor_pipeline_errors_total"])
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	tracker := NewTracker(4, nil)
	tracker.MarkRunning(true)
	tracker.CompleteAll("Analysis complete")

	require.NoError(t, store.SaveSnapshot("run-42", tracker.Snapshot()))

	record, err := store.LoadSnapshot("run-42")
	require.NoError(t, err)
	assert.Equal(t, "run-42", record.RunID)
	assert.Equal(t, 1.0, record.Status.Progress)
	assert.False(t, record.Status.IsRunning)

	runs, err := store.ListRuns()
	require.NoError(t, err)
	assert.Equal(t, []string{"run-42"}, runs)

	_, err = store.LoadSnapshot("missing")
	assert.Error(t, err)
}
