// Package statediff explains a state mismatch by replaying the vector under
// the reference interpreter and diffing both account sets.
package statediff

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ethereum-optimism/infra/op-conformance/backend"
	"github.com/ethereum-optimism/infra/op-conformance/reference"
)

const (
	FieldBalance  = "balance"
	FieldNonce    = "nonce"
	FieldCodeHash = "code_hash"
	FieldStorage  = "storage"
)

// FieldDiff is one field that differs between the backend and the reference.
// Slot is set only for storage differences.
type FieldDiff struct {
	Field     string       `json:"field"`
	Slot      *common.Hash `json:"slot,omitempty"`
	Backend   string       `json:"backend"`
	Reference string       `json:"reference"`
}

// AccountDiff lists the differing fields of an account present on both sides.
type AccountDiff struct {
	Address common.Address `json:"address"`
	Fields  []FieldDiff    `json:"fields"`
}

// AccountStateDiff is the symmetric difference of two account sets plus the
// per-field inequalities on their intersection. All slices are sorted by
// address.
type AccountStateDiff struct {
	OnlyInBackend   []common.Address `json:"only_in_backend,omitempty"`
	OnlyInReference []common.Address `json:"only_in_reference,omitempty"`
	Changed         []AccountDiff    `json:"changed,omitempty"`
}

// Empty reports whether both account sets were identical.
func (d *AccountStateDiff) Empty() bool {
	return len(d.OnlyInBackend) == 0 && len(d.OnlyInReference) == 0 && len(d.Changed) == 0
}

// NormalizeBackend converts the backend's account outputs to the shared
// account form. A missing code hash is derived from the code.
func NormalizeBackend(accounts map[common.Address]backend.AccountOutput) reference.AccountStateMap {
	out := make(reference.AccountStateMap, len(accounts))
	for addr, acc := range accounts {
		out[addr] = NormalizeAccount(acc)
	}
	return out
}

// NormalizeAccount converts one backend account output.
func NormalizeAccount(acc backend.AccountOutput) reference.Account {
	balance := new(uint256.Int)
	if acc.Balance != nil {
		balance.Set(acc.Balance)
	}
	codeHash := types.EmptyCodeHash
	switch {
	case acc.CodeHash != nil:
		codeHash = *acc.CodeHash
	case len(acc.Code) > 0:
		codeHash = crypto.Keccak256Hash(acc.Code)
	}
	return reference.Account{
		Balance:  balance,
		Nonce:    acc.Nonce,
		CodeHash: codeHash,
		Storage:  nonZeroSlots(acc.Storage),
	}
}

func nonZeroSlots(storage map[common.Hash]common.Hash) map[common.Hash]common.Hash {
	out := make(map[common.Hash]common.Hash, len(storage))
	for slot, value := range storage {
		if value != (common.Hash{}) {
			out[slot] = value
		}
	}
	return out
}

// Compare diffs the backend's account set against the reference's.
func Compare(backendAccounts, referenceAccounts reference.AccountStateMap) *AccountStateDiff {
	diff := &AccountStateDiff{}
	for addr, b := range backendAccounts {
		r, ok := referenceAccounts[addr]
		if !ok {
			diff.OnlyInBackend = append(diff.OnlyInBackend, addr)
			continue
		}
		if fields := compareAccount(b, r); len(fields) > 0 {
			diff.Changed = append(diff.Changed, AccountDiff{Address: addr, Fields: fields})
		}
	}
	for addr := range referenceAccounts {
		if _, ok := backendAccounts[addr]; !ok {
			diff.OnlyInReference = append(diff.OnlyInReference, addr)
		}
	}

	sortAddresses(diff.OnlyInBackend)
	sortAddresses(diff.OnlyInReference)
	sort.Slice(diff.Changed, func(i, j int) bool {
		return bytes.Compare(diff.Changed[i].Address[:], diff.Changed[j].Address[:]) < 0
	})
	return diff
}

func compareAccount(b, r reference.Account) []FieldDiff {
	var fields []FieldDiff
	if balanceOf(b).Cmp(balanceOf(r)) != 0 {
		fields = append(fields, FieldDiff{Field: FieldBalance, Backend: balanceOf(b).Dec(), Reference: balanceOf(r).Dec()})
	}
	if b.Nonce != r.Nonce {
		fields = append(fields, FieldDiff{Field: FieldNonce, Backend: fmt.Sprint(b.Nonce), Reference: fmt.Sprint(r.Nonce)})
	}
	if b.CodeHash != r.CodeHash {
		fields = append(fields, FieldDiff{Field: FieldCodeHash, Backend: b.CodeHash.Hex(), Reference: r.CodeHash.Hex()})
	}

	slots := make(map[common.Hash]struct{}, len(b.Storage)+len(r.Storage))
	for slot := range b.Storage {
		slots[slot] = struct{}{}
	}
	for slot := range r.Storage {
		slots[slot] = struct{}{}
	}
	ordered := make([]common.Hash, 0, len(slots))
	for slot := range slots {
		ordered = append(ordered, slot)
	}
	sort.Slice(ordered, func(i, j int) bool { return bytes.Compare(ordered[i][:], ordered[j][:]) < 0 })

	for _, slot := range ordered {
		// absent and zero are the same value
		bv, rv := b.Storage[slot], r.Storage[slot]
		if bv != rv {
			slot := slot
			fields = append(fields, FieldDiff{Field: FieldStorage, Slot: &slot, Backend: bv.Hex(), Reference: rv.Hex()})
		}
	}
	return fields
}

func balanceOf(acc reference.Account) *uint256.Int {
	if acc.Balance == nil {
		return new(uint256.Int)
	}
	return acc.Balance
}

func sortAddresses(addrs []common.Address) {
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
}
