package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

var _ Backend = (*ProcessBackend)(nil)

const (
	defaultStderrTailBytes = 64 * 1024

	// processWaitDelay bounds how long a killed prover's children may keep
	// its output pipes open.
	processWaitDelay = 2 * time.Second
)

// CmdBuilder creates the command for one invocation. It mirrors
// exec.CommandContext so tests can substitute their own process.
type CmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd

// ProcessConfig holds configuration for creating a ProcessBackend
type ProcessConfig struct {
	Binary     string
	Args       []string
	Timeout    time.Duration // per invocation, 0 disables the timeout
	Env        []string      // appended to the inherited environment
	Log        log.Logger
	CmdBuilder CmdBuilder
}

// ProcessBackend runs an external prover once per vector. The generation
// inputs are written to the prover's stdin and the prover answers with a
// single JSON document on the last non-empty line of stdout:
//
//	{"state_root":"0x..","receipts_root":"0x..","accounts":{"0x..":{...}}}
//	{"error":"invalid transaction"}
//
// Exit status 0 or 1 together with a readable document is a normal outcome;
// everything else is a fault.
type ProcessBackend struct {
	cfg ProcessConfig
}

// NewProcessBackend creates a new process backend
func NewProcessBackend(cfg ProcessConfig) (*ProcessBackend, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("prover binary is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = exec.CommandContext
	}
	return &ProcessBackend{cfg: cfg}, nil
}

// Execute implements the Backend interface
func (p *ProcessBackend) Execute(ctx context.Context, inputs []byte) (*ExecutionOutput, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	cmd := p.cfg.CmdBuilder(ctx, p.cfg.Binary, p.cfg.Args...)
	if len(p.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.cfg.Env...)
	}

	var stdout bytes.Buffer
	stderr := newTailBuffer(defaultStderrTailBytes)
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = processWaitDelay
	}
	cmd.Stdin = bytes.NewReader(inputs)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)
	p.cfg.Log.Debug("Prover finished", "binary", p.cfg.Binary, "duration", duration, "err", runErr)

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, NewFaultError(fmt.Sprintf("prover timed out after %v%s", p.cfg.Timeout, stderr.suffix()), ctx.Err())
	}

	exitCode := 0
	if runErr != nil {
		exitErr := &exec.ExitError{}
		if !errors.As(runErr, &exitErr) {
			return nil, NewFaultError("failed to run prover", runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	doc, parseErr := parseOutputDocument(stdout.Bytes())
	switch {
	case exitCode != 0 && exitCode != 1:
		return nil, NewFaultError(fmt.Sprintf("prover exited with code %d%s", exitCode, stderr.suffix()), runErr)
	case parseErr != nil:
		return nil, NewFaultError(fmt.Sprintf("unreadable prover output (exit code %d)%s", exitCode, stderr.suffix()), parseErr)
	case doc.Error != nil:
		return nil, &ExecutionError{Reason: *doc.Error}
	case exitCode != 0:
		return nil, NewFaultError(fmt.Sprintf("prover exited with code %d without reporting an error%s", exitCode, stderr.suffix()), runErr)
	}
	return doc.toOutput()
}

type outputDocument struct {
	Error            *string                        `json:"error,omitempty"`
	StateRoot        *common.Hash                   `json:"state_root"`
	ReceiptsRoot     *common.Hash                   `json:"receipts_root,omitempty"`
	TransactionsRoot *common.Hash                   `json:"transactions_root,omitempty"`
	Accounts         map[common.Address]accountJSON `json:"accounts,omitempty"`
}

type accountJSON struct {
	Balance  *hexutil.Big                `json:"balance"`
	Nonce    hexutil.Uint64              `json:"nonce"`
	Code     hexutil.Bytes               `json:"code,omitempty"`
	CodeHash *common.Hash                `json:"code_hash,omitempty"`
	Storage  map[common.Hash]common.Hash `json:"storage,omitempty"`
}

// parseOutputDocument decodes the last non-empty stdout line. Provers are free
// to log on earlier lines.
func parseOutputDocument(stdout []byte) (*outputDocument, error) {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return nil, errors.New("empty output")
	}
	var doc outputDocument
	if err := json.Unmarshal([]byte(last), &doc); err != nil {
		return nil, fmt.Errorf("decoding output document: %w", err)
	}
	return &doc, nil
}

func (d *outputDocument) toOutput() (*ExecutionOutput, error) {
	if d.StateRoot == nil {
		return nil, NewFaultError("prover output has no state root", nil)
	}
	out := &ExecutionOutput{
		StateRoot:        *d.StateRoot,
		ReceiptsRoot:     d.ReceiptsRoot,
		TransactionsRoot: d.TransactionsRoot,
	}
	if d.Accounts == nil {
		return out, nil
	}
	out.Accounts = make(map[common.Address]AccountOutput, len(d.Accounts))
	for addr, acc := range d.Accounts {
		balance := new(uint256.Int)
		if acc.Balance != nil {
			if acc.Balance.ToInt().Sign() < 0 {
				return nil, NewFaultError(fmt.Sprintf("balance of %s is negative", addr.Hex()), nil)
			}
			var overflow bool
			balance, overflow = uint256.FromBig(acc.Balance.ToInt())
			if overflow {
				return nil, NewFaultError(fmt.Sprintf("balance of %s overflows 256 bits", addr.Hex()), nil)
			}
		}
		out.Accounts[addr] = AccountOutput{
			Balance:  balance,
			Nonce:    uint64(acc.Nonce),
			Code:     acc.Code,
			CodeHash: acc.CodeHash,
			Storage:  acc.Storage,
		}
	}
	return out, nil
}
