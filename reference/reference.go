// Package reference replays test vectors under a reference interpreter to
// obtain an independent post-execution account set.
package reference

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Replayer executes a serialized reference snapshot.
type Replayer interface {
	Replay(ctx context.Context, snapshot []byte) (*Result, error)
}

// Account is the normalized form of one account, shared by the reference
// interpreter and the backend when diffing. Storage never holds zero values.
type Account struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash common.Hash
	Storage  map[common.Hash]common.Hash
}

// AccountStateMap is a post-execution account set keyed by address.
type AccountStateMap map[common.Address]Account

// Result is the outcome of one replay.
type Result struct {
	StateRoot common.Hash
	Accounts  AccountStateMap
}

// ReplayError reports that a snapshot could not be replayed.
type ReplayError struct {
	Reason string
	Err    error
}

func (e *ReplayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("replay failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("replay failed: %s", e.Reason)
}

// Unwrap implements the errors.Unwrap interface
func (e *ReplayError) Unwrap() error {
	return e.Err
}
