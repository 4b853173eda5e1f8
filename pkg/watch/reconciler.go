package watch

import (
	"context"
	"time"

	"advisor/pkg/artifact"
	"advisor/pkg/logx"
	"advisor/pkg/status"
)

// Reconciler is the authoritative progress source. On every tick it stats the
// milestone artifacts directly and raises any signal the notification path
// missed. When all milestones exist it forces the terminal state regardless
// of what the runner or watcher reported.
type Reconciler struct {
	root     string
	tracker  *status.Tracker
	interval time.Duration
	logger   *logx.Logger
}

// NewReconciler creates a reconciler polling the output root at the given
// interval.
func NewReconciler(root string, tracker *status.Tracker, interval time.Duration) *Reconciler {
	return &Reconciler{
		root:     root,
		tracker:  tracker,
		interval: interval,
		logger:   logx.NewLogger("reconciler"),
	}
}

// Start launches the polling loop. It runs until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Debug("Reconciler stopping: %v", ctx.Err())
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// Sweep performs one reconciliation pass. Exported so a consumer can force a
// pass without waiting for the next tick (and so tests can drive it directly).
func (r *Reconciler) Sweep() {
	for _, m := range artifact.Milestones {
		if artifact.Satisfied(artifact.Path(r.root, m.Suffix)) {
			r.tracker.ObserveSignal("reconciler", m.Fraction, m.Message, m.NextTask, m.TaskID)
		}
	}

	// The artifacts on disk outrank anything the runner reported: if every
	// milestone exists while the run still claims to be going, the run is
	// complete even when the runner died without flipping the flag.
	if r.tracker.IsRunning() && artifact.AllSatisfied(r.root) {
		r.logger.Info("All milestone artifacts present; forcing completion")
		r.tracker.CompleteAll("Analysis complete")
	}
}
