// Package persistence provides the SQLite-backed run ledger: one row per
// pipeline run, recording when it started, how it ended, and the terminal
// error if any. The ledger is an explicit handle passed to its consumers;
// there is no ambient database state.
package persistence

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"advisor/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP,
	outcome    TEXT NOT NULL DEFAULT 'running',
	error      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Run is one ledger row.
type Run struct {
	RunID     string
	StartedAt time.Time
	EndedAt   *time.Time
	Outcome   string // running, completed, failed, cancelled
	Error     string
}

// Ledger records pipeline run lifecycles.
type Ledger struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open creates or opens the ledger database at the given path and ensures
// the schema exists. Safe to call on an existing ledger file.
func Open(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping run ledger: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize run ledger schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Ledger{db: db, logger: logx.NewLogger("ledger")}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("failed to close run ledger: %w", err)
	}
	return nil
}

// RecordRunStart inserts the row for a new run.
func (l *Ledger) RecordRunStart(runID string, startedAt time.Time) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	_, err := l.db.Exec(
		`INSERT INTO runs (run_id, started_at, outcome) VALUES (?, ?, 'running')`,
		runID, startedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run start for %s: %w", runID, err)
	}
	return nil
}

// RecordRunEnd closes out a run with its outcome and terminal error.
func (l *Ledger) RecordRunEnd(runID, outcome, errMsg string) error {
	result, err := l.db.Exec(
		`UPDATE runs SET ended_at = ?, outcome = ?, error = ? WHERE run_id = ?`,
		time.Now().UTC(), outcome, errMsg, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run end for %s: %w", runID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check run end update for %s: %w", runID, err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s not found in ledger", runID)
	}
	return nil
}

// GetRun loads one ledger row.
func (l *Ledger) GetRun(runID string) (Run, error) {
	var run Run
	var endedAt sql.NullTime
	err := l.db.QueryRow(
		`SELECT run_id, started_at, ended_at, outcome, error FROM runs WHERE run_id = ?`,
		runID,
	).Scan(&run.RunID, &run.StartedAt, &endedAt, &run.Outcome, &run.Error)
	if err != nil {
		return Run{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		run.EndedAt = &t
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.Query(
		`SELECT run_id, started_at, ended_at, outcome, error FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			l.logger.Warn("Failed to close run rows: %v", err)
		}
	}()

	var runs []Run
	for rows.Next() {
		var run Run
		var endedAt sql.NullTime
		if err := rows.Scan(&run.RunID, &run.StartedAt, &endedAt, &run.Outcome, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if endedAt.Valid {
			t := endedAt.Time
			run.EndedAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run rows: %w", err)
	}
	return runs, nil
}
