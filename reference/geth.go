package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/tests"
	"github.com/holiman/uint256"
)

var _ Replayer = (*GethReplayer)(nil)

// Snapshot selects one post-state of a go-ethereum state test. Test holds the
// test body, i.e. the value stored under the test name in the fixture file.
type Snapshot struct {
	Fork  string          `json:"fork"`
	Index int             `json:"index"`
	Test  json.RawMessage `json:"test"`
}

// DecodeSnapshot parses a serialized snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &ReplayError{Reason: "malformed snapshot", Err: err}
	}
	if snap.Fork == "" {
		return nil, &ReplayError{Reason: "snapshot has no fork"}
	}
	if len(snap.Test) == 0 {
		return nil, &ReplayError{Reason: "snapshot has no test body"}
	}
	return &snap, nil
}

// GethReplayer replays snapshots with go-ethereum's state test runner.
type GethReplayer struct {
	log log.Logger
}

// NewGethReplayer creates a replayer backed by go-ethereum.
func NewGethReplayer(logger log.Logger) *GethReplayer {
	if logger == nil {
		logger = log.New()
	}
	return &GethReplayer{log: logger}
}

// Replay implements the Replayer interface
func (g *GethReplayer) Replay(ctx context.Context, snapshot []byte) (res *Result, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := DecodeSnapshot(snapshot)
	if err != nil {
		return nil, err
	}
	if _, ok := tests.Forks[snap.Fork]; !ok {
		return nil, &ReplayError{Reason: fmt.Sprintf("unsupported fork %q", snap.Fork)}
	}

	var test tests.StateTest
	if err := json.Unmarshal(snap.Test, &test); err != nil {
		return nil, &ReplayError{Reason: "malformed state test", Err: err}
	}

	subtest := tests.StateSubtest{Fork: snap.Fork, Index: snap.Index}
	if !hasSubtest(&test, subtest) {
		return nil, &ReplayError{Reason: fmt.Sprintf("no post state %s/%d", snap.Fork, snap.Index)}
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, &ReplayError{Reason: fmt.Sprintf("interpreter panicked: %v", r)}
		}
	}()

	var (
		result  *Result
		dumpErr error
	)
	// Run reports a post-state mismatch against the fixture as an error. The
	// fixture's own expectation is irrelevant here, only the state matters.
	runErr := test.Run(subtest, vm.Config{}, false, rawdb.HashScheme, func(err error, st *tests.StateTestState) {
		if st == nil || st.StateDB == nil {
			return
		}
		// The handed over statedb is only reopened at the post root when it
		// matches the fixture, so dump from a fresh copy.
		root := st.StateDB.IntermediateRoot(false)
		post, err := state.New(root, st.StateDB.Database())
		if err != nil {
			dumpErr = fmt.Errorf("opening post state %s: %w", root.Hex(), err)
			return
		}
		accounts, err := accountsFromDump(post.RawDump(nil))
		if err != nil {
			dumpErr = err
			return
		}
		result = &Result{StateRoot: root, Accounts: accounts}
	})
	if dumpErr != nil {
		return nil, &ReplayError{Reason: "dumping post state", Err: dumpErr}
	}
	if result == nil {
		return nil, &ReplayError{Reason: "execution produced no state", Err: runErr}
	}
	if runErr != nil {
		g.log.Debug("Reference post state differs from fixture", "fork", snap.Fork, "index", snap.Index, "err", runErr)
	}
	return result, nil
}

func hasSubtest(test *tests.StateTest, want tests.StateSubtest) bool {
	for _, st := range test.Subtests() {
		if st.Fork == want.Fork && st.Index == want.Index {
			return true
		}
	}
	return false
}

func accountsFromDump(dump state.Dump) (AccountStateMap, error) {
	accounts := make(AccountStateMap, len(dump.Accounts))
	for key, acc := range dump.Accounts {
		var addr common.Address
		switch {
		case acc.Address != nil:
			addr = *acc.Address
		case common.IsHexAddress(key):
			addr = common.HexToAddress(key)
		default:
			return nil, fmt.Errorf("account %s has no address preimage", key)
		}

		balance, err := uint256.FromDecimal(acc.Balance)
		if err != nil {
			return nil, fmt.Errorf("account %s balance %q: %w", addr.Hex(), acc.Balance, err)
		}
		storage := make(map[common.Hash]common.Hash, len(acc.Storage))
		for slot, value := range acc.Storage {
			v := common.BytesToHash(common.FromHex(strings.TrimSpace(value)))
			if v != (common.Hash{}) {
				storage[slot] = v
			}
		}
		accounts[addr] = Account{
			Balance:  balance,
			Nonce:    acc.Nonce,
			CodeHash: common.BytesToHash(acc.CodeHash),
			Storage:  storage,
		}
	}
	return accounts, nil
}
