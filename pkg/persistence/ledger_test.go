package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestRunLifecycle(t *testing.T) {
	ledger := openTestLedger(t)

	started := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, ledger.RecordRunStart("run-1", started))

	run, err := ledger.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "running", run.Outcome)
	assert.Nil(t, run.EndedAt)

	require.NoError(t, ledger.RecordRunEnd("run-1", "failed", "Analysis error: screener down"))

	run, err = ledger.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Outcome)
	assert.Equal(t, "Analysis error: screener down", run.Error)
	require.NotNil(t, run.EndedAt)
	assert.False(t, run.EndedAt.Before(started))
}

func TestRecordRunEndUnknownRun(t *testing.T) {
	ledger := openTestLedger(t)
	err := ledger.RecordRunEnd("ghost", "completed", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRecentRunsNewestFirst(t *testing.T) {
	ledger := openTestLedger(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, ledger.RecordRunStart(id, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, ledger.RecordRunEnd(id, "completed", ""))
	}

	runs, err := ledger.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].RunID)
	assert.Equal(t, "run-b", runs[1].RunID)
}

func TestOpenIsIdempotentOnExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.RecordRunStart("run-1", time.Now().UTC()))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	run, err := second.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.RunID)
}
