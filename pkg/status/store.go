package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RunRecord is the terminal snapshot persisted for one pipeline run.
type RunRecord struct {
	RunID      string           `json:"run_id"`
	SavedAt    time.Time        `json:"saved_at"`
	Status     ProcessingStatus `json:"status"`
	DurationMS int64            `json:"duration_ms"`
}

// Store persists terminal run snapshots as STATUS_<runID>.json files so a
// finished run's outcome survives process restarts.
type Store struct {
	baseDir string
}

// NewStore creates a snapshot store rooted at the given directory.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create status directory %s: %w", baseDir, err)
	}
	return &Store{baseDir: baseDir}, nil
}

// SaveSnapshot writes the terminal status of a run. Call only once the run
// has stopped; in-flight snapshots belong to the Tracker, not the store.
func (s *Store) SaveSnapshot(runID string, st ProcessingStatus) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	record := RunRecord{
		RunID:   runID,
		SavedAt: time.Now().UTC(),
		Status:  st,
	}
	if !st.StartTime.IsZero() {
		record.DurationMS = record.SavedAt.Sub(st.StartTime).Milliseconds()
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for run %s: %w", runID, err)
	}

	if err := os.WriteFile(s.snapshotFilename(runID), data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot for run %s: %w", runID, err)
	}
	return nil
}

// LoadSnapshot reads a persisted run record. Returns os.ErrNotExist wrapped
// when the run was never saved.
func (s *Store) LoadSnapshot(runID string) (RunRecord, error) {
	if runID == "" {
		return RunRecord{}, fmt.Errorf("runID cannot be empty")
	}

	data, err := os.ReadFile(s.snapshotFilename(runID))
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to read snapshot for run %s: %w", runID, err)
	}

	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return RunRecord{}, fmt.Errorf("failed to unmarshal snapshot for run %s: %w", runID, err)
	}
	return record, nil
}

// ListRuns returns the run IDs with a persisted snapshot, sorted.
func (s *Store) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read status directory %s: %w", s.baseDir, err)
	}

	var runs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "STATUS_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		runs = append(runs, strings.TrimSuffix(strings.TrimPrefix(name, "STATUS_"), ".json"))
	}
	sort.Strings(runs)
	return runs, nil
}

func (s *Store) snapshotFilename(runID string) string {
	return filepath.Join(s.baseDir, "STATUS_"+runID+".json")
}
