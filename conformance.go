package conformance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-conformance/backend"
	"github.com/ethereum-optimism/infra/op-conformance/corpus"
	"github.com/ethereum-optimism/infra/op-conformance/interrupt"
	"github.com/ethereum-optimism/infra/op-conformance/reference"
	"github.com/ethereum-optimism/infra/op-conformance/reporting"
	"github.com/ethereum-optimism/infra/op-conformance/runner"
	"github.com/ethereum-optimism/infra/op-conformance/runstate"
	"github.com/ethereum-optimism/infra/op-conformance/service"
	"github.com/ethereum-optimism/infra/op-conformance/statediff"
	"github.com/ethereum-optimism/infra/op-conformance/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// Conformance implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &Conformance{}

// Conformance runs a corpus once against the configured backend.
type Conformance struct {
	config  *Config
	version string
	runID   string
	backend backend.Backend
	service *service.Service // nil unless metrics are enabled
	signal  *interrupt.Signal
	out     io.Writer
	result  *types.RunResults

	running  atomic.Bool
	stopOnce sync.Once

	shutdownCallback context.CancelCauseFunc // Callback to signal application shutdown
}

// New creates the lifecycle for one run of the external prover configured in
// config. svc may be nil.
func New(config *Config, version string, svc *service.Service, shutdownCallback context.CancelCauseFunc) (*Conformance, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	be, err := backend.NewProcessBackend(backend.ProcessConfig{
		Binary:  config.ProverBinary,
		Args:    config.ProverArgs,
		Timeout: config.ProverTimeout,
		Log:     config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	return newConformance(config, version, be, svc, shutdownCallback), nil
}

func newConformance(config *Config, version string, be backend.Backend, svc *service.Service, shutdownCallback context.CancelCauseFunc) *Conformance {
	runID := config.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}
	config.Log.Debug("Creating conformance runner",
		"corpus", config.CorpusDir,
		"prover", config.ProverBinary,
		"state", config.StateSpec,
		"resume", config.ResumeMode,
		"run_id", runID)
	return &Conformance{
		config:           config,
		version:          version,
		runID:            runID,
		backend:          be,
		service:          svc,
		signal:           interrupt.New(),
		out:              os.Stdout,
		shutdownCallback: shutdownCallback,
	}
}

// Start executes the run. Cancelling ctx sets the cancellation signal, which
// the runner observes before the next test. On success the application is
// asked to shut down; every other outcome is returned as a typed error.
// Start implements the cliapp.Lifecycle interface.
func (c *Conformance) Start(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.config.Log.Error("Runtime error occurred", "error", r, "stack", string(debug.Stack()))
			err = NewRuntimeError(fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			c.stop()
		}
	}()

	c.running.Store(true)
	c.config.Log.Info("Starting op-conformance", "version", c.version, "run_id", c.runID)

	if c.service != nil {
		if err := c.service.Start(); err != nil {
			return NewRuntimeError(err)
		}
	}

	stopWatch := c.signal.CancelOnDone(ctx)
	defer stopWatch()

	result, err := c.runTests(ctx)
	if err != nil {
		return err
	}

	if c.config.Strict && !result.AllPassed() {
		c.config.Log.Warn("Run completed with failures, returning exit code 1")
		return NewTestFailureError(result.String())
	}

	go func() {
		c.shutdownCallback(nil)
	}()
	return nil
}

// runTests loads the corpus, runs it and reports the results. The run state
// store is closed before it returns.
func (c *Conformance) runTests(ctx context.Context) (*types.RunResults, error) {
	sel, err := c.loadSelection()
	if err != nil {
		return nil, NewRuntimeError(err)
	}
	groups, err := corpus.Load(corpus.Config{Dir: c.config.CorpusDir, Selection: sel, Log: c.config.Log})
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to load corpus: %w", err))
	}

	runDir, err := reporting.NewRunDir(c.config.LogDir, c.runID)
	if err != nil {
		return nil, NewRuntimeError(err)
	}

	store, err := runstate.Open(c.config.StateSpec)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to open run state: %w", err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			c.config.Log.Error("Failed to close run state", "err", err)
		}
	}()

	var differ runner.Differ
	if c.config.Diff {
		differ = statediff.NewDiffer(statediff.Config{
			Replayer: reference.NewGethReplayer(c.config.Log),
			Sinks:    []statediff.Sink{statediff.NewWriterSink(c.out), runDir},
			Log:      c.config.Log,
		})
	}

	r, err := runner.NewRunner(runner.Config{
		Backend:      c.backend,
		Store:        store,
		Differ:       differ,
		Signal:       c.signal,
		Log:          c.config.Log,
		ProgressMode: c.config.ProgressMode,
		ResumeMode:   c.config.ResumeMode,
		CatchFaults:  c.config.CatchFaults,
		Output:       c.out,
		RunID:        c.runID,
	})
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to create runner: %w", err))
	}

	result, runErr := r.Run(ctx, groups)
	if result != nil {
		c.result = result
		c.report(result, runDir)
	}

	switch {
	case errors.Is(runErr, runner.ErrAborted):
		c.config.Log.Warn("Run aborted, completed tests are recorded", "run_id", c.runID, "state", c.config.StateSpec)
		return result, NewAbortedError(result.String())
	case runErr != nil:
		return result, NewRuntimeError(runErr)
	}
	c.config.Log.Info("Test run completed", "run_id", c.runID, "passed", result.AllPassed())
	return result, nil
}

func (c *Conformance) loadSelection() (*corpus.Selection, error) {
	if c.config.SelectionFile == "" {
		return nil, nil
	}
	return corpus.LoadSelection(c.config.SelectionFile)
}

// report prints the results table and writes the summary files. Failing to
// write the files does not change the outcome of the run.
func (c *Conformance) report(result *types.RunResults, runDir *reporting.RunDir) {
	fmt.Fprint(c.out, reporting.NewTableFormatter("Conformance Results", true).Format(result))
	fmt.Fprintln(c.out, result.String())
	if err := runDir.WriteSummary(result); err != nil {
		c.config.Log.Error("Failed to write run summary", "dir", runDir.Path(), "err", err)
		return
	}
	c.config.Log.Info("Run summary written", "dir", runDir.Path())
}

// Stop implements the cliapp.Lifecycle interface.
func (c *Conformance) Stop(ctx context.Context) error {
	c.config.Log.Info("Stopping op-conformance")
	c.signal.Cancel()
	c.stop()
	return nil
}

func (c *Conformance) stop() {
	c.stopOnce.Do(func() {
		c.running.Store(false)
		if c.service != nil {
			c.service.Shutdown()
		}
	})
}

// Stopped returns true once the service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (c *Conformance) Stopped() bool {
	return !c.running.Load()
}

// Result returns the results of the last run, nil before it finished.
func (c *Conformance) Result() *types.RunResults {
	return c.result
}

// RunID returns the identifier of the run.
func (c *Conformance) RunID() string {
	return c.runID
}
