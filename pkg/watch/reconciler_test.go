package watch

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/artifact"
	"advisor/pkg/status"
)

func writeMilestone(t *testing.T, root, suffix string) {
	t.Helper()
	require.NoError(t, os.WriteFile(artifact.Path(root, suffix), []byte("content"), 0644))
}

func TestSweepRaisesObservedMilestones(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, artifact.EnsureLayout(root))
	tracker := status.NewTracker(artifact.TotalMilestones, nil)

	writeMilestone(t, root, artifact.StrategyInfoFile)
	writeMilestone(t, root, artifact.StrategyReportFile)

	r := NewReconciler(root, tracker, time.Second)
	r.Sweep()

	st := tracker.Snapshot()
	assert.Equal(t, 0.5, st.Progress)
	assert.Equal(t, []string{"report", "strategy"}, st.CompletedTasks)
	assert.False(t, st.IsRunning)
}

func TestSweepForcesCompletionWhenAllArtifactsExist(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, artifact.EnsureLayout(root))
	tracker := status.NewTracker(artifact.TotalMilestones, nil)

	// Runner claims it is still going, but all artifacts are on disk.
	tracker.MarkRunning(true)
	for _, m := range artifact.Milestones {
		writeMilestone(t, root, m.Suffix)
	}

	r := NewReconciler(root, tracker, time.Second)
	r.Sweep()

	st := tracker.Snapshot()
	assert.Equal(t, 1.0, st.Progress, "reconciler must force progress to 1.0")
	assert.False(t, st.IsRunning, "reconciler must force is_running off")
	assert.Equal(t, "Analysis complete", st.Message)
	assert.Len(t, st.CompletedTasks, artifact.TotalMilestones)
}

func TestSweepIgnoresEmptyArtifacts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, artifact.EnsureLayout(root))
	tracker := status.NewTracker(artifact.TotalMilestones, nil)

	// Zero-byte file is an in-progress write, not a milestone.
	require.NoError(t, os.WriteFile(artifact.Path(root, artifact.CompaniesFile), nil, 0644))

	NewReconciler(root, tracker, time.Second).Sweep()

	st := tracker.Snapshot()
	assert.Zero(t, st.Progress)
	assert.Empty(t, st.CompletedTasks)
}

func TestSweepIsIdempotentAcrossTicks(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, artifact.EnsureLayout(root))
	tracker := status.NewTracker(artifact.TotalMilestones, nil)

	writeMilestone(t, root, artifact.StrategyInfoFile)

	r := NewReconciler(root, tracker, time.Second)
	for i := 0; i < 3; i++ {
		r.Sweep()
	}

	st := tracker.Snapshot()
	assert.Equal(t, 0.25, st.Progress)
	assert.Equal(t, []string{"strategy"}, st.CompletedTasks)
}

func TestStartPollsUntilCancelled(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, artifact.EnsureLayout(root))
	tracker := status.NewTracker(artifact.TotalMilestones, nil)
	tracker.MarkRunning(true)

	for _, m := range artifact.Milestones {
		writeMilestone(t, root, m.Suffix)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	NewReconciler(root, tracker, 10*time.Millisecond).Start(ctx)

	require.Eventually(t, func() bool {
		st := tracker.Snapshot()
		return st.Progress == 1.0 && !st.IsRunning
	}, 2*time.Second, 10*time.Millisecond, "reconciler never completed the run")
}
