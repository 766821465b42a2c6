package conformance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-conformance/backend"
	"github.com/ethereum-optimism/infra/op-conformance/reporting"
	"github.com/ethereum-optimism/infra/op-conformance/runner"
	"github.com/ethereum-optimism/infra/op-conformance/runstate"
	"github.com/ethereum-optimism/infra/op-conformance/types"
)

var (
	goodRoot = common.HexToHash("0x600d")
	badRoot  = common.HexToHash("0xbad0")
)

type mockBackend struct {
	mock.Mock
}

// Execute implements the backend.Backend interface
func (m *mockBackend) Execute(ctx context.Context, inputs []byte) (*backend.ExecutionOutput, error) {
	args := m.Called(ctx, inputs)
	out, _ := args.Get(0).(*backend.ExecutionOutput)
	return out, args.Error(1)
}

func writeVector(t *testing.T, dir, group, subGroup, name string) {
	t.Helper()
	path := filepath.Join(dir, group, subGroup)
	require.NoError(t, os.MkdirAll(path, 0o755))
	data := fmt.Sprintf(`{"generation_inputs":{"name":%q},"expected_state_root":%q}`, name, goodRoot.Hex())
	require.NoError(t, os.WriteFile(filepath.Join(path, name+".json"), []byte(data), 0o644))
}

type fixture struct {
	cfg      *Config
	backend  *mockBackend
	out      *bytes.Buffer
	shutdown chan error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tmp := t.TempDir()
	corpusDir := filepath.Join(tmp, "corpus")
	writeVector(t, corpusDir, "frontier", "call", "t01")
	writeVector(t, corpusDir, "frontier", "call", "t02")
	writeVector(t, corpusDir, "frontier", "create", "t03")

	return &fixture{
		cfg: &Config{
			CorpusDir:    corpusDir,
			ProverBinary: "prover",
			StateSpec:    "file:" + filepath.Join(tmp, "state.json"),
			ResumeMode:   runner.ResumeAll,
			ProgressMode: runner.ProgressPlain,
			CatchFaults:  true,
			Diff:         true,
			LogDir:       filepath.Join(tmp, "logs"),
			RunID:        "run-1",
			Log:          log.NewLogger(log.DiscardHandler()),
		},
		backend:  &mockBackend{},
		out:      &bytes.Buffer{},
		shutdown: make(chan error, 1),
	}
}

func (f *fixture) conformance() *Conformance {
	c := newConformance(f.cfg, "test", f.backend, nil, func(err error) { f.shutdown <- err })
	c.out = f.out
	return c
}

func (f *fixture) entries(t *testing.T) types.RunStateEntries {
	t.Helper()
	store, err := runstate.Open(f.cfg.StateSpec)
	require.NoError(t, err)
	defer store.Close()
	return store.Entries()
}

func TestStartCompletesRun(t *testing.T) {
	f := newFixture(t)
	f.backend.On("Execute", mock.Anything, mock.Anything).
		Return(&backend.ExecutionOutput{StateRoot: goodRoot}, nil)

	c := f.conformance()
	require.NoError(t, c.Start(context.Background()))

	select {
	case err := <-f.shutdown:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback was not called")
	}

	f.backend.AssertNumberOfCalls(t, "Execute", 3)
	require.NotNil(t, c.Result())
	assert.True(t, c.Result().AllPassed())
	assert.Equal(t, 3, c.Result().Stats.Passed)
	assert.Len(t, f.entries(t), 3)

	assert.Contains(t, f.out.String(), "(1/3) Running frontier/call/t01...")
	assert.Contains(t, f.out.String(), "Run run-1 completed")
	assert.FileExists(t, filepath.Join(f.cfg.LogDir, reporting.RunDirectoryPrefix+"run-1", reporting.SummaryFilename))

	require.NoError(t, c.Stop(context.Background()))
	assert.True(t, c.Stopped())
}

func TestStartFailuresOnlyMatterInStrictMode(t *testing.T) {
	for _, strict := range []bool{false, true} {
		t.Run(fmt.Sprintf("strict=%v", strict), func(t *testing.T) {
			f := newFixture(t)
			f.cfg.Strict = strict
			f.backend.On("Execute", mock.Anything, mock.Anything).
				Return(&backend.ExecutionOutput{StateRoot: badRoot}, nil)

			err := f.conformance().Start(context.Background())
			if strict {
				require.Error(t, err)
				assert.True(t, IsTestFailureError(err))
			} else {
				require.NoError(t, err)
			}
			for _, status := range f.entries(t) {
				assert.Equal(t, types.StatusStateMismatch, status.Kind)
			}
		})
	}
}

func TestStartAbortsWhenContextIsCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := f.conformance()
	err := c.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsAbortedError(err))
	assert.False(t, IsRuntimeError(err))
	assert.True(t, c.Stopped())
	f.backend.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	assert.Empty(t, f.entries(t))
	assert.True(t, c.Result().Aborted)
}

func TestStopAbortsAfterTestInFlight(t *testing.T) {
	f := newFixture(t)
	c := f.conformance()
	f.backend.On("Execute", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { require.NoError(t, c.Stop(context.Background())) }).
		Return(&backend.ExecutionOutput{StateRoot: goodRoot}, nil)

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsAbortedError(err))
	f.backend.AssertNumberOfCalls(t, "Execute", 1)

	entries := f.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, types.Passed(), entries["frontier/call/t01"])
	assert.Equal(t, 1, c.Result().Stats.Total)
	assert.Contains(t, f.out.String(), "Run run-1 aborted")
}

func TestStartResumesIncompleteRun(t *testing.T) {
	f := newFixture(t)
	f.cfg.ResumeMode = runner.ResumeIncomplete

	store, err := runstate.Open(f.cfg.StateSpec)
	require.NoError(t, err)
	require.NoError(t, store.Update("frontier/call/t01", types.Passed()))
	require.NoError(t, store.Close())

	f.backend.On("Execute", mock.Anything, mock.Anything).
		Return(&backend.ExecutionOutput{StateRoot: goodRoot}, nil)

	c := f.conformance()
	require.NoError(t, c.Start(context.Background()))
	f.backend.AssertNumberOfCalls(t, "Execute", 2)
	assert.Equal(t, 1, c.Result().Stats.Resumed)
	assert.Equal(t, 3, c.Result().Stats.Total)
}

func TestStartRuntimeErrors(t *testing.T) {
	t.Run("missing corpus", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.CorpusDir = filepath.Join(t.TempDir(), "missing")
		err := f.conformance().Start(context.Background())
		require.Error(t, err)
		assert.True(t, IsRuntimeError(err))
	})

	t.Run("missing selection file", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.SelectionFile = filepath.Join(t.TempDir(), "missing.yaml")
		err := f.conformance().Start(context.Background())
		require.Error(t, err)
		assert.True(t, IsRuntimeError(err))
	})

	t.Run("corrupt run state", func(t *testing.T) {
		f := newFixture(t)
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		f.cfg.StateSpec = "file:" + path

		err := f.conformance().Start(context.Background())
		require.Error(t, err)
		assert.True(t, IsRuntimeError(err))
		f.backend.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	})
}

func TestStartSelection(t *testing.T) {
	f := newFixture(t)
	sel := filepath.Join(t.TempDir(), "selection.yaml")
	require.NoError(t, os.WriteFile(sel, []byte("include:\n  - frontier/call/*\nexclude:\n  - frontier/call/t02\n"), 0o644))
	f.cfg.SelectionFile = sel
	f.backend.On("Execute", mock.Anything, mock.Anything).
		Return(&backend.ExecutionOutput{StateRoot: goodRoot}, nil)

	c := f.conformance()
	require.NoError(t, c.Start(context.Background()))
	f.backend.AssertNumberOfCalls(t, "Execute", 1)
	assert.Contains(t, f.entries(t), "frontier/call/t01")
}

func TestGeneratedRunID(t *testing.T) {
	f := newFixture(t)
	f.cfg.RunID = ""
	c := f.conformance()
	assert.NotEmpty(t, c.RunID())
	assert.NotEqual(t, c.RunID(), f.conformance().RunID())
}

func TestErrorTypes(t *testing.T) {
	base := errors.New("boom")
	runtimeErr := fmt.Errorf("failed to start: %w", NewRuntimeError(base))
	assert.True(t, IsRuntimeError(runtimeErr))
	assert.ErrorIs(t, runtimeErr, base)
	assert.False(t, IsTestFailureError(runtimeErr))

	joined := errors.Join(fmt.Errorf("failed to start: %w", NewAbortedError("run x")), context.Canceled)
	assert.True(t, IsAbortedError(joined))
	assert.Equal(t, "aborted: run x", NewAbortedError("run x").Error())

	assert.True(t, IsTestFailureError(NewTestFailureError("1 failed")))
	assert.False(t, IsRuntimeError(nil))
}
