// Package backend defines the execution/proving backend boundary and a backend
// that drives an external prover process.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Backend executes (or proves) one vector.
type Backend interface {
	// Execute runs the vector described by inputs. Domain failures are
	// reported as *ExecutionError, unexpected failures as *FaultError.
	Execute(ctx context.Context, inputs []byte) (*ExecutionOutput, error)
}

// ExecutionOutput is what the backend reports after a successful execution.
type ExecutionOutput struct {
	StateRoot        common.Hash
	ReceiptsRoot     *common.Hash
	TransactionsRoot *common.Hash

	// Accounts is the post-execution account set, nil if the backend does
	// not report it.
	Accounts map[common.Address]AccountOutput
}

// AccountOutput is one account as reported by the backend. Either Code or
// CodeHash may be set; a backend that reports neither has no code.
type AccountOutput struct {
	Balance  *uint256.Int
	Nonce    uint64
	Code     []byte
	CodeHash *common.Hash
	Storage  map[common.Hash]common.Hash
}

// ExecutionError is a domain error reported by the backend, e.g. an invalid
// transaction.
type ExecutionError struct {
	Reason string
}

func (e *ExecutionError) Error() string {
	return e.Reason
}

// NewExecutionError creates a new ExecutionError
func NewExecutionError(format string, args ...any) *ExecutionError {
	return &ExecutionError{Reason: fmt.Sprintf(format, args...)}
}

// FaultError is an unexpected failure inside the backend: a crash, a timeout
// or output that cannot be understood.
type FaultError struct {
	Reason string
	Err    error
}

func (e *FaultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

// Unwrap implements the errors.Unwrap interface
func (e *FaultError) Unwrap() error {
	return e.Err
}

// NewFaultError creates a new FaultError
func NewFaultError(reason string, err error) *FaultError {
	return &FaultError{Reason: reason, Err: err}
}

// IsFault checks if the error is or wraps a FaultError
func IsFault(err error) bool {
	var fault *FaultError
	return err != nil && errors.As(err, &fault)
}
