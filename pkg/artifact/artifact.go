// Package artifact defines the output files the pipeline stages produce and
// the fixed mapping from each file to a progress milestone. The filesystem is
// the event bus between the pipeline and the status consumer: both the
// notification watcher and the polling reconciler resolve paths through the
// same table here, so duplicate observations collapse onto the same slot.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File names under the output root, one per pipeline milestone.
const (
	StrategyInfoFile    = "strategy_info.json"
	StrategyReportFile  = "output.md"
	CompaniesFile       = "companies.json"
	ValuationReportFile = "valuation.md"

	// FinancialDataDir holds per-company metrics/valuation artifacts.
	FinancialDataDir = "fmp_data"
)

// Per-company artifact suffixes inside FinancialDataDir.
const (
	MetricsSuffix   = "_metrics.md"
	ValuationSuffix = "_valuation.md"
)

// TotalMilestones is the fixed number of milestone artifacts a run produces.
const TotalMilestones = 4

// Milestone maps one artifact to its progress slot.
type Milestone struct {
	Suffix   string  // path suffix identifying the artifact
	TaskID   string  // stable identifier for the completed-task set
	Fraction float64 // progress fraction when the artifact appears
	Message  string  // status message for the consumer
	NextTask string  // task label shown while the next stage runs
}

// Milestones is the ordered milestone table. Order matches the pipeline
// stage order; progress itself is max-merged so out-of-order writes are safe.
//
//nolint:gochecknoglobals // Static table shared by watcher and reconciler.
var Milestones = []Milestone{
	{Suffix: StrategyInfoFile, TaskID: "strategy", Fraction: 0.25, Message: "Strategy information collected", NextTask: "Researching companies"},
	{Suffix: StrategyReportFile, TaskID: "report", Fraction: 0.50, Message: "Strategy report generated", NextTask: "Analyzing financials"},
	{Suffix: CompaniesFile, TaskID: "companies", Fraction: 0.75, Message: "Companies identified", NextTask: "Performing valuation"},
	{Suffix: ValuationReportFile, TaskID: "valuation", Fraction: 1.0, Message: "Valuation complete", NextTask: "Analysis complete"},
}

// Match resolves a changed path to its milestone via suffix identity.
// Per-company files under FinancialDataDir are not milestones; they are
// reported through MatchCompanyFile instead.
func Match(path string) (Milestone, bool) {
	for _, m := range Milestones {
		if strings.HasSuffix(path, m.Suffix) && !isCompanyFile(path) {
			return m, true
		}
	}
	return Milestone{}, false
}

// MatchCompanyFile reports whether the path is a per-company analysis
// artifact and returns the company symbol it belongs to.
func MatchCompanyFile(path string) (symbol string, ok bool) {
	if !isCompanyFile(path) {
		return "", false
	}
	base := filepath.Base(path)
	if idx := strings.Index(base, "_"); idx > 0 {
		return base[:idx], true
	}
	return "", false
}

func isCompanyFile(path string) bool {
	if !strings.Contains(filepath.ToSlash(path), FinancialDataDir+"/") {
		return false
	}
	base := filepath.Base(path)
	return strings.HasSuffix(base, MetricsSuffix) || strings.HasSuffix(base, ValuationSuffix)
}

// Path returns the absolute path of a milestone artifact under the root.
func Path(root, suffix string) string {
	return filepath.Join(root, suffix)
}

// CompanyPath returns the path for one company's analysis artifact.
func CompanyPath(root, symbol, suffix string) string {
	return filepath.Join(root, FinancialDataDir, symbol+suffix)
}

// Satisfied reports whether the artifact exists with non-zero size. Empty
// files are in-progress writes and do not count as signals.
func Satisfied(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

// AllSatisfied reports whether every milestone artifact exists non-empty
// under the root.
func AllSatisfied(root string) bool {
	for _, m := range Milestones {
		if !Satisfied(Path(root, m.Suffix)) {
			return false
		}
	}
	return true
}

// EnsureLayout creates the output root and its financial-data subdirectory.
func EnsureLayout(root string) error {
	for _, dir := range []string{root, filepath.Join(root, FinancialDataDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	return nil
}

// Reset removes every artifact under the root and recreates the layout.
// Used before a fresh run so stale artifacts cannot satisfy the reconciler.
func Reset(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return EnsureLayout(root)
		}
		return fmt.Errorf("failed to read output directory %s: %w", root, err)
	}

	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	return EnsureLayout(root)
}

// WriteFile atomically publishes an artifact: write to a temp file in the
// same directory, then rename over the final path. Observers only ever see
// absent or complete artifacts, never partial writes.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp artifact: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to publish artifact %s: %w", path, err)
	}
	return nil
}
