// Package reporting renders run results for the console and writes the
// per-run report files.
package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-conformance/statediff"
	"github.com/ethereum-optimism/infra/op-conformance/types"
)

const (
	RunDirectoryPrefix = "testrun-"
	SummaryFilename    = "summary.log"
	ResultsFilename    = "results.json"
	DiffsDirname       = "diffs"
)

var _ statediff.Sink = (*RunDir)(nil)

// RunDir is the report directory of one run, <base>/testrun-<runID>. Files
// written there never contain ANSI escapes.
type RunDir struct {
	dir   string
	runID string
	mu    sync.Mutex
}

// NewRunDir creates the directory for runID under baseDir.
func NewRunDir(baseDir, runID string) (*RunDir, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}
	dir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(filepath.Join(dir, DiffsDirname), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return &RunDir{dir: dir, runID: runID}, nil
}

// Path returns the run directory.
func (d *RunDir) Path() string {
	return d.dir
}

// WriteSummary writes the summary table and the machine readable results.
func (d *RunDir) WriteSummary(results *types.RunResults) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	summary := NewTableFormatter("Conformance Results", true).Format(results) + "\n" + results.String() + "\n"
	if err := os.WriteFile(filepath.Join(d.dir, SummaryFilename), []byte(stripansi.Strip(summary)), 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	data, err := json.MarshalIndent(newResultsFile(results), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, ResultsFilename), data, 0o644); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

// Consume implements statediff.Sink by writing the report as text and JSON
// under diffs/<group>/<subgroup>/<test>.
func (d *RunDir) Consume(report *statediff.Report) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	base := filepath.Join(d.dir, DiffsDirname, filepath.FromSlash(sanitizeID(report.TestID)))
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return fmt.Errorf("failed to create diff directory: %w", err)
	}
	if err := os.WriteFile(base+".diff", []byte(stripansi.Strip(report.Render(true))), 0o644); err != nil {
		return fmt.Errorf("failed to write diff: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode diff: %w", err)
	}
	return os.WriteFile(base+".json", data, 0o644)
}

// sanitizeID keeps test IDs from escaping the diffs directory.
func sanitizeID(id string) string {
	parts := strings.Split(id, "/")
	for i, p := range parts {
		if p == "" || p == "." || p == ".." {
			parts[i] = "_"
		}
	}
	return strings.Join(parts, "/")
}

type resultsFile struct {
	RunID    string        `json:"run_id"`
	Aborted  bool          `json:"aborted"`
	Duration string        `json:"duration"`
	Stats    statsFile     `json:"stats"`
	Tests    []testFileRow `json:"tests"`
}

type statsFile struct {
	Total         int `json:"total"`
	Passed        int `json:"passed"`
	Mismatches    int `json:"mismatches"`
	BackendErrors int `json:"backend_errors"`
	Faults        int `json:"faults"`
	Resumed       int `json:"resumed"`
}

type testFileRow struct {
	ID       string           `json:"id"`
	Status   types.TestStatus `json:"status"`
	Duration string           `json:"duration,omitempty"`
	Resumed  bool             `json:"resumed,omitempty"`
}

func newResultsFile(results *types.RunResults) resultsFile {
	out := resultsFile{
		RunID:    results.RunID,
		Aborted:  results.Aborted,
		Duration: results.Duration.String(),
		Stats: statsFile{
			Total:         results.Stats.Total,
			Passed:        results.Stats.Passed,
			Mismatches:    results.Stats.Mismatches,
			BackendErrors: results.Stats.BackendErrors,
			Faults:        results.Stats.Faults,
			Resumed:       results.Stats.Resumed,
		},
		Tests: []testFileRow{},
	}
	for _, g := range results.Groups {
		for _, sg := range g.SubGroupResults {
			for _, t := range sg.TestResults {
				row := testFileRow{ID: t.ID, Status: t.Status, Resumed: t.Resumed}
				if !t.Resumed {
					row.Duration = t.Duration.String()
				}
				out.Tests = append(out.Tests, row)
			}
		}
	}
	return out
}
