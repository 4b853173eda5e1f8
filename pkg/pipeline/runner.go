// Package pipeline executes the four-stage analysis sequence on a background
// goroutine and reports its progress through the status tracker. Exactly one
// run is in flight at a time; stage failures are recorded, never thrown.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"advisor/pkg/eventlog"
	"advisor/pkg/logx"
	"advisor/pkg/status"
)

// CompletionSentinel is the literal token a stage emits to declare the whole
// process finished, independent of artifact polling.
const CompletionSentinel = "MNA_PROCESS_COMPLETE"

// stageProgress is the fixed stage→(fraction, task) table applied at each
// stage transition.
var stageProgress = map[string]struct {
	Fraction float64
	Task     string
}{
	"strategist": {0.25, "Generating strategy report"},
	"researcher": {0.5, "Researching companies"},
	"analyst":    {0.75, "Analyzing financials"},
	"valuator":   {1.0, "Generating valuation report"},
}

// RunRecorder persists run lifecycle rows; the sqlite ledger implements it.
type RunRecorder interface {
	RecordRunStart(runID string, startedAt time.Time) error
	RecordRunEnd(runID string, outcome, errMsg string) error
}

// Runner owns the background pipeline execution.
type Runner struct {
	tracker      *status.Tracker
	stages       []Stage
	stageTimeout time.Duration
	logger       *logx.Logger

	journal  *eventlog.Writer
	store    *status.Store
	recorder RunRecorder

	mu      sync.Mutex
	running bool
	runID   string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRunner creates a runner over the fixed stage sequence. A non-positive
// stage timeout disables per-stage deadlines.
func NewRunner(tracker *status.Tracker, stages []Stage, stageTimeout time.Duration) *Runner {
	return &Runner{
		tracker:      tracker,
		stages:       stages,
		stageTimeout: stageTimeout,
		logger:       logx.NewLogger("pipeline"),
	}
}

// SetJournal attaches a progress-event journal.
func (r *Runner) SetJournal(w *eventlog.Writer) { r.journal = w }

// SetSnapshotStore attaches a store for terminal status snapshots.
func (r *Runner) SetSnapshotStore(s *status.Store) { r.store = s }

// SetRecorder attaches a run-ledger recorder.
func (r *Runner) SetRecorder(rec RunRecorder) { r.recorder = rec }

// Start launches a background run and returns its ID. Idempotent: when a run
// is already in flight it returns that run's ID with started=false.
func (r *Runner) Start(ctx context.Context) (runID string, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return r.runID, false
	}

	runID = uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	r.running = true
	r.runID = runID
	r.cancel = cancel
	r.done = make(chan struct{})

	r.tracker.MarkRunning(true)
	r.tracker.Note("Starting analysis...")
	r.logger.Info("Starting pipeline run %s", runID)

	if r.recorder != nil {
		if err := r.recorder.RecordRunStart(runID, time.Now().UTC()); err != nil {
			r.logger.Warn("Failed to record run start: %v", err)
		}
	}

	go r.run(runCtx, runID, r.done)
	return runID, true
}

// Stop cancels the in-flight run, if any. The run flushes its final snapshot
// before exiting.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run finishes. Returns immediately when no
// run is in flight.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether a run is in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) run(ctx context.Context, runID string, done chan struct{}) {
	outcome := "completed"
	var runErr string

	defer func() {
		r.tracker.MarkRunning(false)
		r.finalize(runID, outcome, runErr)

		r.mu.Lock()
		r.running = false
		r.cancel = nil
		r.mu.Unlock()
		close(done)
	}()

	// The sentinel ends the run: once a streamed chunk declares completion,
	// no further stage may launch.
	var sentinelSeen atomic.Bool
	emit := func(chunk string) {
		if strings.Contains(chunk, CompletionSentinel) && !sentinelSeen.Swap(true) {
			r.logger.Info("Process completion signal detected")
			r.tracker.CompleteAll("Analysis complete")
			r.journalEvent(eventlog.Event{RunID: runID, Kind: "run_completed", Fraction: 1.0})
		}
	}

	for _, stage := range r.stages {
		if sentinelSeen.Load() {
			r.logger.Info("Skipping stage %s: run already complete", stage.Name())
			return
		}
		if ctx.Err() != nil {
			outcome, runErr = r.cancelled(runID)
			return
		}

		p, ok := stageProgress[stage.Name()]
		if !ok {
			p.Fraction, p.Task = 0, stage.Task()
		}
		r.tracker.SetCurrent(stage.Name(), p.Task)
		r.tracker.RaiseProgress(p.Fraction, fmt.Sprintf("Working on %s", strings.ToLower(p.Task)), p.Task, "")
		r.journalEvent(eventlog.Event{RunID: runID, Kind: "stage_started", Stage: stage.Name(), Fraction: p.Fraction})
		r.logger.Info("Stage %s started", stage.Name())

		if err := r.runStage(ctx, stage, emit); err != nil {
			if sentinelSeen.Load() {
				r.logger.Warn("Stage %s errored after completion signal: %v", stage.Name(), err)
				return
			}
			if ctx.Err() != nil {
				outcome, runErr = r.cancelled(runID)
				return
			}

			runErr = fmt.Sprintf("Analysis error: %v", err)
			outcome = "failed"
			r.logger.Error("Stage %s failed: %v", stage.Name(), err)
			r.tracker.SetError(runErr)
			r.journalEvent(eventlog.Event{RunID: runID, Kind: "stage_failed", Stage: stage.Name(), Error: err.Error()})
			return
		}
	}
}

// runStage executes one stage under the per-stage deadline.
func (r *Runner) runStage(ctx context.Context, stage Stage, emit func(string)) error {
	stageCtx := ctx
	if r.stageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, r.stageTimeout)
		defer cancel()
	}

	started := time.Now()
	err := stage.Run(stageCtx, emit)
	r.tracker.ObserveStageDuration(stage.Name(), time.Since(started))
	return err
}

// cancelled records the cancellation outcome: not running, error "cancelled",
// last snapshot preserved for the consumer.
func (r *Runner) cancelled(runID string) (outcome, errMsg string) {
	r.logger.Info("Pipeline run %s cancelled", runID)
	r.tracker.SetError("cancelled")
	r.journalEvent(eventlog.Event{RunID: runID, Kind: "run_cancelled"})
	return "cancelled", "cancelled"
}

// finalize flushes the terminal snapshot and the ledger row.
func (r *Runner) finalize(runID, outcome, errMsg string) {
	if r.store != nil {
		if err := r.store.SaveSnapshot(runID, r.tracker.Snapshot()); err != nil {
			r.logger.Warn("Failed to save terminal snapshot: %v", err)
		}
	}
	if r.recorder != nil {
		if err := r.recorder.RecordRunEnd(runID, outcome, errMsg); err != nil {
			r.logger.Warn("Failed to record run end: %v", err)
		}
	}
}

func (r *Runner) journalEvent(event eventlog.Event) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Write(event); err != nil {
		r.logger.Warn("Failed to journal event: %v", err)
	}
}
