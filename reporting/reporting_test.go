package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-conformance/statediff"
	"github.com/ethereum-optimism/infra/op-conformance/types"
)

func sampleResults(aborted bool) *types.RunResults {
	start := time.Unix(1700000000, 0)
	create := &types.TestSubGroupRunResults{
		Name: "create",
		TestResults: []*types.TestRunResult{
			{Name: "t01", ID: "frontier/create/t01", Status: types.Passed(), Duration: 20 * time.Millisecond},
			{Name: "t02", ID: "frontier/create/t02", Status: types.StateMismatch(types.TrieFinalStateDiff{
				State:       types.Difference(common.HexToHash("0x01"), common.HexToHash("0x02")),
				Receipt:     types.Correct(),
				Transaction: types.Correct(),
			}), Duration: 30 * time.Millisecond},
		},
	}
	call := &types.TestSubGroupRunResults{
		Name: "call",
		TestResults: []*types.TestRunResult{
			{Name: "t03", ID: "frontier/call/t03", Status: types.BackendError("invalid opcode"), Resumed: true},
		},
	}
	for _, sg := range []*types.TestSubGroupRunResults{create, call} {
		sg.Stats.StartTime = start
		sg.Stats.EndTime = start.Add(50 * time.Millisecond)
		for _, r := range sg.TestResults {
			sg.Stats.Add(r)
		}
	}
	group := &types.TestGroupRunResults{Name: "frontier", SubGroupResults: []*types.TestSubGroupRunResults{create, call}}
	results := &types.RunResults{RunID: "abc", Groups: []*types.TestGroupRunResults{group}, Aborted: aborted, Duration: 100 * time.Millisecond}
	for _, sg := range group.SubGroupResults {
		for _, r := range sg.TestResults {
			group.Stats.Add(r)
			results.Stats.Add(r)
		}
	}
	return results
}

func TestTableFormatter(t *testing.T) {
	out := stripansi.Strip(NewTableFormatter("Conformance Results", true).Format(sampleResults(false)))

	assert.Contains(t, out, "Conformance Results")
	assert.Contains(t, out, "frontier")
	assert.Contains(t, out, "├── create")
	assert.Contains(t, out, "└── call")
	assert.Contains(t, out, "t01")
	assert.Contains(t, out, "MISMATCH")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "resumed")
	assert.Contains(t, out, "run abc (1 resumed)")
	assert.Contains(t, out, "FAIL")
}

func TestTableFormatterKeepsRunIDCase(t *testing.T) {
	results := sampleResults(false)
	results.RunID = "0f8e2c4a-Run"
	out := stripansi.Strip(NewTableFormatter("Results", true).Format(results))
	assert.Contains(t, out, "run 0f8e2c4a-Run (1 resumed)")
	assert.NotContains(t, out, "0F8E2C4A")
}

func TestTableFormatterHidesTests(t *testing.T) {
	out := stripansi.Strip(NewTableFormatter("Results", false).Format(sampleResults(false)))
	assert.Contains(t, out, "create")
	assert.NotContains(t, out, "t01")
}

func TestTableFormatterAborted(t *testing.T) {
	results := &types.RunResults{RunID: "r", Aborted: true}
	out := stripansi.Strip(NewTableFormatter("Results", true).Format(results))
	assert.Contains(t, out, "ABORTED")
}

func TestNewRunDir(t *testing.T) {
	base := t.TempDir()
	dir, err := NewRunDir(base, "abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "testrun-abc"), dir.Path())
	assert.DirExists(t, filepath.Join(dir.Path(), DiffsDirname))

	_, err = NewRunDir(base, "")
	require.Error(t, err)
	_, err = NewRunDir("", "abc")
	require.Error(t, err)
}

func TestWriteSummary(t *testing.T) {
	dir, err := NewRunDir(t.TempDir(), "abc")
	require.NoError(t, err)
	require.NoError(t, dir.WriteSummary(sampleResults(true)))

	summary, err := os.ReadFile(filepath.Join(dir.Path(), SummaryFilename))
	require.NoError(t, err)
	assert.NotContains(t, string(summary), "\x1b[")
	assert.Contains(t, string(summary), "Run abc aborted: 3 tests")

	data, err := os.ReadFile(filepath.Join(dir.Path(), ResultsFilename))
	require.NoError(t, err)
	var decoded struct {
		RunID   string `json:"run_id"`
		Aborted bool   `json:"aborted"`
		Stats   struct {
			Total   int `json:"total"`
			Resumed int `json:"resumed"`
		} `json:"stats"`
		Tests []struct {
			ID      string           `json:"id"`
			Status  types.TestStatus `json:"status"`
			Resumed bool             `json:"resumed"`
		} `json:"tests"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "abc", decoded.RunID)
	assert.True(t, decoded.Aborted)
	assert.Equal(t, 3, decoded.Stats.Total)
	assert.Equal(t, 1, decoded.Stats.Resumed)
	require.Len(t, decoded.Tests, 3)
	assert.Equal(t, "frontier/create/t02", decoded.Tests[1].ID)
	assert.Equal(t, types.StatusStateMismatch, decoded.Tests[1].Status.Kind)
	assert.True(t, decoded.Tests[2].Resumed)
}

func TestRunDirConsumesDiffs(t *testing.T) {
	dir, err := NewRunDir(t.TempDir(), "abc")
	require.NoError(t, err)

	report := &statediff.Report{
		TestID:        "frontier/create/t02",
		ExpectedRoot:  common.HexToHash("0x02"),
		BackendRoot:   common.HexToHash("0x01"),
		ReferenceRoot: common.HexToHash("0x02"),
		Accounts: &statediff.AccountStateDiff{
			OnlyInBackend: []common.Address{common.HexToAddress("0x01")},
		},
	}
	require.NoError(t, dir.Consume(report))

	base := filepath.Join(dir.Path(), DiffsDirname, "frontier", "create", "t02")
	text, err := os.ReadFile(base + ".diff")
	require.NoError(t, err)
	assert.Equal(t, report.Render(false), string(text))

	data, err := os.ReadFile(base + ".json")
	require.NoError(t, err)
	var decoded statediff.Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report.TestID, decoded.TestID)
	assert.Equal(t, report.BackendRoot, decoded.BackendRoot)
}

func TestSanitizeID(t *testing.T) {
	assert.Equal(t, "_/_/t", sanitizeID("../../t"))
	assert.Equal(t, "g/s/t", sanitizeID("g/s/t"))
	assert.False(t, strings.Contains(sanitizeID("g//.."), ".."))
}
