package types

import (
	"fmt"
	"time"
)

// TestRunResult captures the outcome of a single test in the result tree.
type TestRunResult struct {
	Name     string
	ID       string
	Status   TestStatus
	Duration time.Duration
	// Resumed is set when the status was taken from the run state instead
	// of executing the test again.
	Resumed bool
}

// TestSubGroupRunResults mirrors a TestSubGroup.
type TestSubGroupRunResults struct {
	Name        string
	TestResults []*TestRunResult
	Stats       ResultStats
}

// TestGroupRunResults mirrors a TestGroup.
type TestGroupRunResults struct {
	Name            string
	SubGroupResults []*TestSubGroupRunResults
	Stats           ResultStats
}

// RunResults is the complete result tree of one run.
type RunResults struct {
	RunID    string
	Groups   []*TestGroupRunResults
	Aborted  bool
	Stats    ResultStats
	Duration time.Duration
}

// ResultStats tracks status counts at each level of the tree.
type ResultStats struct {
	Total         int
	Passed        int
	BackendErrors int
	Faults        int
	Mismatches    int
	Resumed       int
	StartTime     time.Time
	EndTime       time.Time
}

// Add records one test result.
func (s *ResultStats) Add(r *TestRunResult) {
	s.Total++
	if r.Resumed {
		s.Resumed++
	}
	switch r.Status.Kind {
	case StatusPassed:
		s.Passed++
	case StatusBackendError:
		s.BackendErrors++
	case StatusInternalFault:
		s.Faults++
	case StatusStateMismatch:
		s.Mismatches++
	}
}

// Failed returns the number of tests that did not pass.
func (s ResultStats) Failed() int {
	return s.BackendErrors + s.Faults + s.Mismatches
}

// AllPassed reports whether the run completed and every test passed.
func (r *RunResults) AllPassed() bool {
	return !r.Aborted && r.Stats.Failed() == 0
}

func (r *RunResults) String() string {
	state := "completed"
	if r.Aborted {
		state = "aborted"
	}
	return fmt.Sprintf("Run %s %s: %d tests, %d passed, %d mismatched, %d backend errors, %d faults (%d resumed) in %s",
		r.RunID, state, r.Stats.Total, r.Stats.Passed, r.Stats.Mismatches, r.Stats.BackendErrors,
		r.Stats.Faults, r.Stats.Resumed, r.Duration.Truncate(time.Millisecond))
}
