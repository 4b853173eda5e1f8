package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	events := []Event{
		{RunID: "run-1", Kind: "stage_started", Stage: "strategist", Message: "Working on generating strategy report"},
		{RunID: "run-1", Kind: "artifact", TaskID: "strategy", Fraction: 0.25},
		{RunID: "run-1", Kind: "run_completed", Fraction: 1.0},
	}
	for _, e := range events {
		require.NoError(t, w.Write(e))
	}

	path := filepath.Join(dir, "events-"+time.Now().Format("2006-01-02")+".jsonl")
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var decoded []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		decoded = append(decoded, e)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, decoded, 3)
	assert.Equal(t, "stage_started", decoded[0].Kind)
	assert.Equal(t, "strategist", decoded[0].Stage)
	assert.Equal(t, 0.25, decoded[1].Fraction)
	assert.False(t, decoded[0].Timestamp.IsZero(), "missing timestamps are stamped on write")
}

func TestWriterAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	w1, err := NewWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w1.Write(Event{RunID: "run-1", Kind: "run_completed"}))
	require.NoError(t, w1.Close())

	w2, err := NewWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w2.Write(Event{RunID: "run-2", Kind: "run_completed"}))
	require.NoError(t, w2.Close())

	path := filepath.Join(dir, "events-"+time.Now().Format("2006-01-02")+".jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run-1")
	assert.Contains(t, string(data), "run-2")
}

func TestReadEventsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w.Write(Event{RunID: "run-1", Kind: "stage_started", Stage: "researcher"}))
	require.NoError(t, w.Write(Event{RunID: "run-1", Kind: "stage_failed", Stage: "researcher", Error: "screener API unreachable"}))
	require.NoError(t, w.Close())

	events, err := ReadEvents(dir, time.Now())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "stage_failed", events[1].Kind)
	assert.Equal(t, "screener API unreachable", events[1].Error)
}

func TestReadEventsMissingDayIsEmpty(t *testing.T) {
	events, err := ReadEvents(t.TempDir(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCloseIsIdempotent(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
