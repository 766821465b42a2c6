package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-conformance/backend"
	"github.com/ethereum-optimism/infra/op-conformance/interrupt"
	"github.com/ethereum-optimism/infra/op-conformance/metrics"
	"github.com/ethereum-optimism/infra/op-conformance/runstate"
	"github.com/ethereum-optimism/infra/op-conformance/statediff"
	"github.com/ethereum-optimism/infra/op-conformance/types"
)

// ErrAborted is returned together with the partial results when the
// cancellation signal stopped the run.
var ErrAborted = errors.New("run aborted")

// ResumeMode decides which tests with a recorded status are executed again.
type ResumeMode string

const (
	// ResumeAll reruns every test.
	ResumeAll ResumeMode = "all"
	// ResumeIncomplete skips tests that already have a recorded status.
	ResumeIncomplete ResumeMode = "incomplete"
	// ResumeFailed skips tests whose recorded status is passed.
	ResumeFailed ResumeMode = "failed"
)

// ResumeModes lists every supported mode.
var ResumeModes = []ResumeMode{ResumeAll, ResumeIncomplete, ResumeFailed}

func (m ResumeMode) IsValid() bool {
	switch m {
	case ResumeAll, ResumeIncomplete, ResumeFailed:
		return true
	}
	return false
}

// Differ explains state mismatches. It must never fail the run.
type Differ interface {
	Explain(ctx context.Context, id string, info types.TestRunInfo, out *backend.ExecutionOutput) (*statediff.Report, bool)
}

// Config holds configuration for creating a new runner
type Config struct {
	Backend      backend.Backend
	Store        runstate.Store
	Differ       Differ            // optional, explains mismatches
	Signal       *interrupt.Signal // optional, checked between tests
	Log          log.Logger
	ProgressMode ProgressMode
	ResumeMode   ResumeMode
	// CatchFaults converts a panic inside the backend into an internal_fault
	// status instead of letting it terminate the process.
	CatchFaults bool
	Output      io.Writer // progress output, stdout when nil
	// Progress replaces the reporter built from ProgressMode when set.
	Progress ProgressReporter
	RunID       string    // generated when empty
}

// Runner executes a corpus one test at a time.
type Runner struct {
	backend      backend.Backend
	store        runstate.Store
	differ       Differ
	signal       *interrupt.Signal
	log          log.Logger
	progressMode ProgressMode
	resumeMode   ResumeMode
	catchFaults  bool
	out          io.Writer
	progress     ProgressReporter
	runID        string
	tracer       trace.Tracer
}

// NewRunner creates a new runner instance
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("run state store is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.ProgressMode == "" {
		cfg.ProgressMode = DefaultProgressMode
	}
	if !cfg.ProgressMode.IsValid() {
		return nil, fmt.Errorf("unknown progress mode %q", cfg.ProgressMode)
	}
	if cfg.ResumeMode == "" {
		cfg.ResumeMode = DefaultResumeMode
	}
	if !cfg.ResumeMode.IsValid() {
		return nil, fmt.Errorf("unknown resume mode %q", cfg.ResumeMode)
	}

	cfg.Log.Debug("NewRunner()", "progress", cfg.ProgressMode, "resume", cfg.ResumeMode,
		"catchFaults", cfg.CatchFaults, "diff", cfg.Differ != nil)

	return &Runner{
		backend:      cfg.Backend,
		store:        cfg.Store,
		differ:       cfg.Differ,
		signal:       cfg.Signal,
		log:          cfg.Log,
		progressMode: cfg.ProgressMode,
		resumeMode:   cfg.ResumeMode,
		catchFaults:  cfg.CatchFaults,
		out:          cfg.Output,
		progress:     cfg.Progress,
		runID:        cfg.RunID,
		tracer:       otel.Tracer("conformance runner"),
	}, nil
}

// run holds the state of a single Run call.
type run struct {
	id        string
	entries   types.RunStateEntries
	reporter  ProgressReporter
	collector *ResultCollector
}

// Run executes every test of the corpus in order. When the cancellation
// signal is observed it returns the partial results, marked aborted, together
// with ErrAborted. A failure to persist a status stops the run with an error.
func (r *Runner) Run(ctx context.Context, groups []*types.TestGroup) (*types.RunResults, error) {
	runID := r.runID
	if runID == "" {
		runID = uuid.New().String()
	}

	ctx, span := r.tracer.Start(ctx, runSpanName, trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	state := &run{
		id:        runID,
		entries:   r.store.Entries(),
		collector: NewResultCollector(runID),
	}
	pending := r.countPending(groups, state.entries)
	reporter, stop := r.progress, func() {}
	if reporter == nil {
		var err error
		if reporter, stop, err = NewProgressReporter(r.progressMode, pending, r.out); err != nil {
			return nil, err
		}
	}
	state.reporter = reporter

	r.log.Info("Starting conformance run", "run_id", runID, "tests", types.CountTests(groups),
		"pending", pending, "resume", r.resumeMode)

	runErr := r.runGroups(ctx, groups, state)
	stop()

	results := state.collector.Finalize(errors.Is(runErr, ErrAborted))
	metrics.RecordRun(runID, results.Aborted, results.Stats, results.Duration)
	switch {
	case results.Aborted:
		r.log.Warn("Conformance run aborted", "run_id", runID, "completed", results.Stats.Total)
	case runErr != nil:
		r.log.Error("Conformance run failed", "run_id", runID, "err", runErr)
	default:
		r.log.Info("Conformance run completed", "run_id", runID, "passed", results.Stats.Passed,
			"failed", results.Stats.Failed(), "duration", results.Duration)
	}
	return results, runErr
}

func (r *Runner) runGroups(ctx context.Context, groups []*types.TestGroup, state *run) error {
	for _, group := range groups {
		if err := r.runGroup(ctx, group, state); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runGroup(ctx context.Context, group *types.TestGroup, state *run) error {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf(groupSpanFormat, group.Name))
	defer span.End()

	for _, subGroup := range group.SubGroups {
		if err := r.runSubGroup(ctx, group.Name, subGroup, state); err != nil {
			return err
		}
	}
	// a group without subgroups still shows up in a completed run
	state.collector.EnterGroup(group.Name)
	return nil
}

func (r *Runner) runSubGroup(ctx context.Context, groupName string, subGroup *types.TestSubGroup, state *run) error {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf(subGroupSpanFormat, subGroup.Name))
	defer span.End()

	for _, test := range subGroup.Tests {
		if err := r.runTest(ctx, groupName, subGroup.Name, test, state); err != nil {
			return err
		}
	}
	state.collector.Enter(groupName, subGroup.Name)
	return nil
}

func (r *Runner) runTest(ctx context.Context, groupName, subGroupName string, test *types.Test, state *run) error {
	// The previous test is fully persisted at this point, which makes this the
	// only place where a run may stop.
	if r.signal.Cancelled() {
		return ErrAborted
	}
	state.collector.Enter(groupName, subGroupName)

	id := types.TestID(groupName, subGroupName, test.Name)
	if prev, ok := state.entries[id]; ok && r.skip(prev) {
		r.log.Debug("Reusing recorded status", "test", id, "status", prev)
		state.collector.AddTestResult(&types.TestRunResult{
			Name:    test.Name,
			ID:      id,
			Status:  prev,
			Resumed: true,
		})
		return nil
	}

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf(testSpanFormat, test.Name))
	defer span.End()

	state.reporter.Announce(id)

	start := time.Now()
	out, execErr := r.execute(ctx, test.Info.GenerationInputs)
	duration := time.Since(start)
	status := ClassifyOutcome(out, execErr, test.Info)
	span.SetAttributes(attribute.String("status", string(status.Kind)))
	r.log.Debug("Test finished", "test", id, "status", status, "duration", duration)

	writeStart := time.Now()
	if err := r.store.Update(id, status); err != nil {
		metrics.RecordErrorDetails(runStateErrLabel, err)
		return fmt.Errorf("persisting status of %s: %w", id, err)
	}
	metrics.RecordStoreWrite(time.Since(writeStart))

	state.collector.AddTestResult(&types.TestRunResult{
		Name:     test.Name,
		ID:       id,
		Status:   status,
		Duration: duration,
	})
	metrics.RecordTest(state.id, groupName, status, duration)
	state.reporter.CompleteOne()

	if status.Kind == types.StatusStateMismatch && test.Info.HasReferenceSnapshot() && r.differ != nil {
		r.differ.Explain(ctx, id, test.Info, out)
	}
	return nil
}

// execute runs the backend on a context that ignores cancellation: once
// started, a test always runs to completion.
func (r *Runner) execute(ctx context.Context, inputs []byte) (out *backend.ExecutionOutput, err error) {
	ctx = context.WithoutCancel(ctx)
	if r.catchFaults {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("Backend panicked", "panic", p, "stack", string(debug.Stack()))
				out, err = nil, backend.NewFaultError(fmt.Sprintf("backend panicked: %v", p), nil)
			}
		}()
	}
	return r.backend.Execute(ctx, inputs)
}

// skip reports whether a test with a recorded status is left out of this run.
func (r *Runner) skip(prev types.TestStatus) bool {
	switch r.resumeMode {
	case ResumeIncomplete:
		return true
	case ResumeFailed:
		return prev.IsPassed()
	default:
		return false
	}
}

// countPending returns the number of tests that will execute.
func (r *Runner) countPending(groups []*types.TestGroup, entries types.RunStateEntries) int {
	pending := 0
	for _, g := range groups {
		for _, sg := range g.SubGroups {
			for _, t := range sg.Tests {
				prev, ok := entries[types.TestID(g.Name, sg.Name, t.Name)]
				if !ok || !r.skip(prev) {
					pending++
				}
			}
		}
	}
	return pending
}
