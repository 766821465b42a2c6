package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TestGroup is the top level of the corpus hierarchy (e.g. "GeneralStateTests").
type TestGroup struct {
	Name      string
	SubGroups []*TestSubGroup
}

// TestSubGroup is the second level of the corpus hierarchy (e.g. "stCreateTest").
type TestSubGroup struct {
	Name  string
	Tests []*Test
}

// Test is a single test vector.
type Test struct {
	Name string
	Info TestRunInfo
}

// TestRunInfo bundles everything needed to execute and check one vector.
type TestRunInfo struct {
	// GenerationInputs is the backend-ready encoding of the vector. It is
	// passed through untouched.
	GenerationInputs []byte

	ExpectedStateRoot common.Hash

	// Optional commitments, only compared when the backend reports them too.
	ExpectedReceiptsRoot     *common.Hash
	ExpectedTransactionsRoot *common.Hash

	// ReferenceSnapshot is an optional serialized reference-interpreter test
	// used to explain mismatches.
	ReferenceSnapshot []byte
}

// HasReferenceSnapshot reports whether the vector can be replayed by the
// reference interpreter.
func (i TestRunInfo) HasReferenceSnapshot() bool {
	return len(i.ReferenceSnapshot) > 0
}

// TestID returns the key identifying a test within a run.
func TestID(group, subGroup, test string) string {
	return strings.Join([]string{group, subGroup, test}, "/")
}

// SplitTestID is the inverse of TestID. ok is false if id does not have three
// non-empty segments.
func SplitTestID(id string) (group, subGroup, test string, ok bool) {
	parts := strings.SplitN(id, "/", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	for _, p := range parts {
		if p == "" {
			return "", "", "", false
		}
	}
	return parts[0], parts[1], parts[2], true
}

// CountTests returns the number of tests across the whole corpus.
func CountTests(groups []*TestGroup) int {
	total := 0
	for _, g := range groups {
		for _, sg := range g.SubGroups {
			total += len(sg.Tests)
		}
	}
	return total
}
