package types

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// StatusKind identifies which variant a TestStatus holds.
type StatusKind string

const (
	StatusPassed        StatusKind = "passed"
	StatusBackendError  StatusKind = "backend_error"
	StatusInternalFault StatusKind = "internal_fault"
	StatusStateMismatch StatusKind = "state_mismatch"
)

// IsValid reports whether k is one of the known kinds.
func (k StatusKind) IsValid() bool {
	switch k {
	case StatusPassed, StatusBackendError, StatusInternalFault, StatusStateMismatch:
		return true
	}
	return false
}

// TestStatus is the outcome of one test. Exactly one variant holds: Message is
// set for backend errors and internal faults, Diff for state mismatches.
type TestStatus struct {
	Kind    StatusKind
	Message string
	Diff    *TrieFinalStateDiff
}

func Passed() TestStatus {
	return TestStatus{Kind: StatusPassed}
}

func BackendError(msg string) TestStatus {
	return TestStatus{Kind: StatusBackendError, Message: msg}
}

func InternalFault(msg string) TestStatus {
	return TestStatus{Kind: StatusInternalFault, Message: msg}
}

func StateMismatch(diff TrieFinalStateDiff) TestStatus {
	return TestStatus{Kind: StatusStateMismatch, Diff: &diff}
}

func (s TestStatus) IsPassed() bool {
	return s.Kind == StatusPassed
}

func (s TestStatus) String() string {
	switch s.Kind {
	case StatusPassed:
		return "passed"
	case StatusBackendError:
		return fmt.Sprintf("backend error: %s", s.Message)
	case StatusInternalFault:
		return fmt.Sprintf("internal fault: %s", s.Message)
	case StatusStateMismatch:
		if s.Diff == nil {
			return "state mismatch"
		}
		return fmt.Sprintf("state mismatch: %s", s.Diff)
	default:
		return fmt.Sprintf("unknown status %q", string(s.Kind))
	}
}

// Validate checks that the status holds exactly one well-formed variant.
func (s TestStatus) Validate() error {
	switch s.Kind {
	case StatusPassed:
		if s.Diff != nil || s.Message != "" {
			return fmt.Errorf("passed status carries a payload")
		}
	case StatusBackendError, StatusInternalFault:
		if s.Diff != nil {
			return fmt.Errorf("%s status carries a diff", s.Kind)
		}
	case StatusStateMismatch:
		if s.Diff == nil {
			return fmt.Errorf("state mismatch status without diff")
		}
		if s.Message != "" {
			return fmt.Errorf("state mismatch status carries a message")
		}
	default:
		return fmt.Errorf("unknown status kind %q", string(s.Kind))
	}
	return nil
}

type statusJSON struct {
	Kind    StatusKind          `json:"kind"`
	Message string              `json:"message,omitempty"`
	Diff    *TrieFinalStateDiff `json:"diff,omitempty"`
}

func (s TestStatus) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(statusJSON(s))
}

func (s *TestStatus) UnmarshalJSON(data []byte) error {
	var raw statusJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := TestStatus(raw)
	if err := decoded.Validate(); err != nil {
		return err
	}
	*s = decoded
	return nil
}

// TrieComparisonResult compares one commitment. Actual and Expected are only
// meaningful when Correct is false.
type TrieComparisonResult struct {
	Correct  bool
	Actual   common.Hash
	Expected common.Hash
}

func Correct() TrieComparisonResult {
	return TrieComparisonResult{Correct: true}
}

func Difference(actual, expected common.Hash) TrieComparisonResult {
	return TrieComparisonResult{Actual: actual, Expected: expected}
}

func (r TrieComparisonResult) String() string {
	if r.Correct {
		return "correct"
	}
	return fmt.Sprintf("actual %s, expected %s", r.Actual.Hex(), r.Expected.Hex())
}

type comparisonJSON struct {
	Correct  bool         `json:"correct"`
	Actual   *common.Hash `json:"actual,omitempty"`
	Expected *common.Hash `json:"expected,omitempty"`
}

func (r TrieComparisonResult) MarshalJSON() ([]byte, error) {
	if r.Correct {
		return json.Marshal(comparisonJSON{Correct: true})
	}
	actual, expected := r.Actual, r.Expected
	return json.Marshal(comparisonJSON{Actual: &actual, Expected: &expected})
}

func (r *TrieComparisonResult) UnmarshalJSON(data []byte) error {
	var raw comparisonJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Correct {
		*r = Correct()
		return nil
	}
	if raw.Actual == nil || raw.Expected == nil {
		return fmt.Errorf("difference requires both actual and expected hashes")
	}
	*r = Difference(*raw.Actual, *raw.Expected)
	return nil
}

// TrieFinalStateDiff holds the independent comparisons of the three
// post-execution commitments.
type TrieFinalStateDiff struct {
	State       TrieComparisonResult `json:"state"`
	Receipt     TrieComparisonResult `json:"receipt"`
	Transaction TrieComparisonResult `json:"transaction"`
}

// AllCorrect reports whether every commitment matched.
func (d TrieFinalStateDiff) AllCorrect() bool {
	return d.State.Correct && d.Receipt.Correct && d.Transaction.Correct
}

func (d TrieFinalStateDiff) String() string {
	return fmt.Sprintf("state root %s; receipt root %s; transaction root %s", d.State, d.Receipt, d.Transaction)
}

// RunStateEntries maps a test ID to the last recorded status of that test.
type RunStateEntries map[string]TestStatus

// Clone returns a shallow copy of the entries.
func (e RunStateEntries) Clone() RunStateEntries {
	out := make(RunStateEntries, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
