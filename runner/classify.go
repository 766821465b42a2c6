package runner

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethereum-optimism/infra/op-conformance/backend"
	"github.com/ethereum-optimism/infra/op-conformance/types"
)

// ClassifyOutcome turns the backend's outcome for one test into its status.
// It performs no I/O.
func ClassifyOutcome(out *backend.ExecutionOutput, err error, info types.TestRunInfo) types.TestStatus {
	if err != nil {
		if backend.IsFault(err) {
			return types.InternalFault(err.Error())
		}
		var execErr *backend.ExecutionError
		if errors.As(err, &execErr) {
			return types.BackendError(execErr.Reason)
		}
		return types.BackendError(err.Error())
	}
	if out == nil {
		return types.InternalFault("backend returned no output")
	}

	diff := types.TrieFinalStateDiff{
		State:       compareRoot(out.StateRoot, info.ExpectedStateRoot),
		Receipt:     compareOptionalRoot(out.ReceiptsRoot, info.ExpectedReceiptsRoot),
		Transaction: compareOptionalRoot(out.TransactionsRoot, info.ExpectedTransactionsRoot),
	}
	if diff.AllCorrect() {
		return types.Passed()
	}
	return types.StateMismatch(diff)
}

func compareRoot(actual, expected common.Hash) types.TrieComparisonResult {
	if actual == expected {
		return types.Correct()
	}
	return types.Difference(actual, expected)
}

// compareOptionalRoot is Correct unless both sides supplied the commitment.
func compareOptionalRoot(actual, expected *common.Hash) types.TrieComparisonResult {
	if actual == nil || expected == nil {
		return types.Correct()
	}
	return compareRoot(*actual, *expected)
}
