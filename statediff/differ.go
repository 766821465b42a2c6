package statediff

import (
	"context"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-conformance/backend"
	"github.com/ethereum-optimism/infra/op-conformance/reference"
	"github.com/ethereum-optimism/infra/op-conformance/types"
)

// Report is the diagnostic output for one mismatched test.
type Report struct {
	TestID        string      `json:"test_id"`
	ExpectedRoot  common.Hash `json:"expected_root"`
	BackendRoot   common.Hash `json:"backend_root"`
	ReferenceRoot common.Hash `json:"reference_root"`
	// Accounts is nil when the backend reported no account data.
	Accounts *AccountStateDiff `json:"accounts,omitempty"`
}

// Sink receives every report the differ produces.
type Sink interface {
	Consume(report *Report) error
}

// WriterSink renders reports with colour to a writer, stdout by default.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	if w == nil {
		w = os.Stdout
	}
	return &WriterSink{w: w}
}

// Consume implements the Sink interface
func (s *WriterSink) Consume(report *Report) error {
	_, err := io.WriteString(s.w, report.Render(true))
	return err
}

// Config holds configuration for creating a Differ
type Config struct {
	Replayer reference.Replayer
	Sinks    []Sink
	Log      log.Logger
}

// Differ produces account-level diagnostics for mismatched tests. It never
// fails: anything that goes wrong degrades to "no diff available".
type Differ struct {
	replayer reference.Replayer
	sinks    []Sink
	log      log.Logger
}

// NewDiffer creates a new differ
func NewDiffer(cfg Config) *Differ {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Replayer == nil {
		cfg.Replayer = reference.NewGethReplayer(cfg.Log)
	}
	return &Differ{
		replayer: cfg.Replayer,
		sinks:    cfg.Sinks,
		log:      cfg.Log,
	}
}

// Explain replays the test's reference snapshot and diffs the result against
// the backend output. It returns false when no report could be produced.
func (d *Differ) Explain(ctx context.Context, id string, info types.TestRunInfo, out *backend.ExecutionOutput) (*Report, bool) {
	if !info.HasReferenceSnapshot() || out == nil {
		return nil, false
	}

	ref, err := d.replayer.Replay(ctx, info.ReferenceSnapshot)
	if err != nil {
		d.log.Debug("No diff available", "test", id, "err", err)
		return nil, false
	}

	report := &Report{
		TestID:        id,
		ExpectedRoot:  info.ExpectedStateRoot,
		BackendRoot:   out.StateRoot,
		ReferenceRoot: ref.StateRoot,
	}
	if len(out.Accounts) > 0 {
		report.Accounts = Compare(NormalizeBackend(out.Accounts), ref.Accounts)
	}

	for _, sink := range d.sinks {
		if err := sink.Consume(report); err != nil {
			d.log.Warn("Failed to write state diff", "test", id, "err", err)
		}
	}
	return report, true
}
