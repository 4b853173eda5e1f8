// Package watch delivers artifact progress signals to the status tracker
// through two complementary paths: an fsnotify watcher for low-latency
// notification and a polling reconciler that is authoritative. Notification
// can drop or duplicate events; the reconciler's stat-based sweep guarantees
// every milestone is eventually observed. Both paths write through the same
// idempotent tracker operations, so overlap is harmless.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"advisor/pkg/artifact"
	"advisor/pkg/logx"
	"advisor/pkg/status"
)

// Watcher translates filesystem events under the output root into progress
// signals. Best effort only; the reconciler covers anything it misses.
type Watcher struct {
	root    string
	tracker *status.Tracker
	logger  *logx.Logger
	fsw     *fsnotify.Watcher
}

// NewWatcher creates a watcher over the output root. The root and its
// financial-data subdirectory must exist before Start.
func NewWatcher(root string, tracker *status.Tracker) *Watcher {
	return &Watcher{
		root:    root,
		tracker: tracker,
		logger:  logx.NewLogger("watcher"),
	}
}

// Start registers the watch paths and launches the event loop. The loop runs
// until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	w.fsw = fsw

	if err := fsw.Add(w.root); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch output root %s: %w", w.root, err)
	}
	// The financial-data dir may not exist yet; handleEvent picks it up when
	// the analyst stage creates it.
	financialDir := filepath.Join(w.root, artifact.FinancialDataDir)
	if _, err := os.Stat(financialDir); err == nil {
		if err := fsw.Add(financialDir); err != nil {
			w.logger.Warn("Failed to watch %s: %v", financialDir, err)
		}
	}

	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("Failed to close filesystem watcher: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Watcher stopping: %v", ctx.Err())
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Filesystem watcher error: %v", err)
		}
	}
}

// handleEvent maps one filesystem event to a tracker update. Only creates and
// writes matter; removes and renames carry no progress information.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	// Pick up the financial-data dir as soon as the pipeline creates it.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if filepath.Base(event.Name) == artifact.FinancialDataDir {
				if err := w.fsw.Add(event.Name); err != nil {
					w.logger.Warn("Failed to watch %s: %v", event.Name, err)
				}
			}
			return
		}
	}

	if m, ok := artifact.Match(event.Name); ok {
		// Creation events can race the writer; only signal once content exists.
		if !artifact.Satisfied(event.Name) {
			return
		}
		w.logger.Debug("Artifact signal: %s -> %s", event.Name, m.TaskID)
		w.tracker.ObserveSignal("watcher", m.Fraction, m.Message, m.NextTask, m.TaskID)
		return
	}

	if symbol, ok := artifact.MatchCompanyFile(event.Name); ok && artifact.Satisfied(event.Name) {
		w.tracker.Note(fmt.Sprintf("Processing financial data for %s", symbol))
	}
}
