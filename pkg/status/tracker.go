// Package status owns the shared pipeline state observed by the polling
// consumer. The Tracker is the single mutation point: the background runner,
// the filesystem watcher, and the polling reconciler all write through it,
// and every mutator is serialized by one mutex.
package status

import (
	"sort"
	"sync"
	"time"
)

// ProcessingStatus is the consumer-facing view of pipeline progress.
// Snapshot returns it by value; readers never mutate shared state.
type ProcessingStatus struct {
	CurrentAgent   string    `json:"current_agent"`
	CurrentTask    string    `json:"current_task"`
	StartTime      time.Time `json:"start_time"`
	Progress       float64   `json:"progress"`
	Message        string    `json:"message"`
	Error          string    `json:"error,omitempty"`
	CompletedTasks []string  `json:"completed_tasks"`
	TotalTasks     int       `json:"total_tasks"`
	IsRunning      bool      `json:"is_running"`
}

// Recorder receives progress observations for metrics export.
// A nil Recorder on the Tracker disables metrics.
type Recorder interface {
	ObserveProgress(fraction float64)
	ObserveSignal(taskID, source string)
	ObserveRunning(running bool)
	ObserveError()
	ObserveStageDuration(stage string, seconds float64)
}

// Tracker records pipeline stage, progress fraction, and completed task IDs.
// Progress is monotonically non-decreasing (max merge) and the completed set
// is insert-only, so duplicate or out-of-order signals from the watcher and
// the reconciler are harmless.
type Tracker struct {
	mu        sync.Mutex
	agent     string
	task      string
	startTime time.Time
	progress  float64
	message   string
	errMsg    string
	completed map[string]struct{}
	total     int
	running   bool
	recorder  Recorder
}

// NewTracker creates a tracker for a pipeline with the given task count.
func NewTracker(totalTasks int, recorder Recorder) *Tracker {
	return &Tracker{
		message:   "Ready to start analysis",
		completed: make(map[string]struct{}),
		total:     totalTasks,
		recorder:  recorder,
	}
}

// RaiseProgress merges a progress observation: progress only rises
// (max merge), message and current task are overwritten only when the
// fraction actually increased, and the task ID insertion is idempotent.
// Callers may deliver the same signal any number of times from any source.
func (t *Tracker) RaiseProgress(fraction float64, message, task, taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if taskID != "" {
		t.completed[taskID] = struct{}{}
	}

	if fraction > t.progress {
		t.progress = fraction
		if message != "" {
			t.message = message
		}
		if task != "" {
			t.task = task
		}
	}

	if t.recorder != nil {
		t.recorder.ObserveProgress(t.progress)
	}
}

// ObserveSignal is RaiseProgress plus source attribution for metrics.
// The watcher and the reconciler both report here so duplicate delivery
// shows up in the signal counter without affecting state.
func (t *Tracker) ObserveSignal(source string, fraction float64, message, task, taskID string) {
	t.RaiseProgress(fraction, message, task, taskID)
	if t.recorder != nil {
		t.recorder.ObserveSignal(taskID, source)
	}
}

// ObserveStageDuration forwards a stage wall-clock measurement to metrics.
func (t *Tracker) ObserveStageDuration(stage string, elapsed time.Duration) {
	if t.recorder != nil {
		t.recorder.ObserveStageDuration(stage, elapsed.Seconds())
	}
}

// SetCurrent records which agent/task the runner is executing. Does not
// touch progress: fractions only move through RaiseProgress.
func (t *Tracker) SetCurrent(agent, task string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if agent != "" {
		t.agent = agent
	}
	if task != "" {
		t.task = task
	}
}

// Note overwrites only the status message, for incremental updates that have
// no fixed fraction (per-company analysis artifacts).
func (t *Tracker) Note(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.message = message
}

// MarkRunning flips the running flag. Turning it on stamps the start time
// and clears any previous error.
func (t *Tracker) MarkRunning(running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if running && !t.running {
		t.startTime = time.Now().UTC()
		t.errMsg = ""
	}
	t.running = running

	if t.recorder != nil {
		t.recorder.ObserveRunning(running)
	}
}

// SetError records a terminal pipeline error and a generic failure message.
func (t *Tracker) SetError(errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.errMsg = errMsg
	t.message = "Error during analysis"

	if t.recorder != nil {
		t.recorder.ObserveError()
	}
}

// CompleteAll forces the terminal state: progress 1.0, not running, with the
// given message. Used by the sentinel scanner and by the reconciler when all
// milestone artifacts are present.
func (t *Tracker) CompleteAll(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.progress = 1.0
	t.running = false
	t.message = message
	t.task = "Complete"

	if t.recorder != nil {
		t.recorder.ObserveProgress(1.0)
		t.recorder.ObserveRunning(false)
	}
}

// IsRunning reports the running flag.
func (t *Tracker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Reset restores the initial state before a fresh run.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.agent = ""
	t.task = ""
	t.startTime = time.Time{}
	t.progress = 0
	t.message = "Ready to start analysis"
	t.errMsg = ""
	t.completed = make(map[string]struct{})
	t.running = false
}

// Snapshot returns a read-only copy of the current status. The copy is taken
// under the mutex, so readers never observe a torn state.
func (t *Tracker) Snapshot() ProcessingStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	completed := make([]string, 0, len(t.completed))
	for id := range t.completed {
		completed = append(completed, id)
	}
	sort.Strings(completed)

	return ProcessingStatus{
		CurrentAgent:   t.agent,
		CurrentTask:    t.task,
		StartTime:      t.startTime,
		Progress:       t.progress,
		Message:        t.message,
		Error:          t.errMsg,
		CompletedTasks: completed,
		TotalTasks:     t.total,
		IsRunning:      t.running,
	}
}
