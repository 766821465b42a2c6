package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-conformance/types"
)

func TestResultCollector(t *testing.T) {
	c := NewResultCollector("run-1")
	c.StartGroup("frontier")
	c.StartSubGroup("create")
	c.AddTestResult(&types.TestRunResult{Name: "t1", Status: types.Passed()})
	c.AddTestResult(&types.TestRunResult{Name: "t2", Status: types.BackendError("bad")})
	c.StartSubGroup("call")
	c.AddTestResult(&types.TestRunResult{Name: "t3", Status: types.InternalFault("crash"), Resumed: true})
	c.StartGroup("berlin")
	c.StartSubGroup("empty")

	result := c.Finalize(false)
	assert.Equal(t, "run-1", result.RunID)
	assert.False(t, result.Aborted)
	require.Len(t, result.Groups, 2)

	frontier := result.Groups[0]
	require.Len(t, frontier.SubGroupResults, 2)
	assert.Equal(t, "create", frontier.SubGroupResults[0].Name)
	assert.Len(t, frontier.SubGroupResults[0].TestResults, 2)
	assert.Equal(t, 1, frontier.SubGroupResults[0].Stats.Passed)
	assert.Equal(t, 1, frontier.SubGroupResults[0].Stats.BackendErrors)
	assert.Equal(t, 3, frontier.Stats.Total)
	assert.Equal(t, 1, frontier.Stats.Faults)
	assert.Equal(t, 1, frontier.Stats.Resumed)

	berlin := result.Groups[1]
	require.Len(t, berlin.SubGroupResults, 1)
	assert.Empty(t, berlin.SubGroupResults[0].TestResults)
	assert.Equal(t, 0, berlin.Stats.Total)

	assert.Equal(t, 3, result.Stats.Total)
	assert.Equal(t, 2, result.Stats.Failed())
	assert.False(t, result.AllPassed())
	assert.False(t, result.Stats.EndTime.Before(result.Stats.StartTime))
	assert.False(t, frontier.Stats.EndTime.IsZero())
}

func TestResultCollectorAborted(t *testing.T) {
	c := NewResultCollector("run-2")
	c.StartGroup("g")
	c.StartSubGroup("s")
	c.AddTestResult(&types.TestRunResult{Name: "t", Status: types.Passed()})
	result := c.Finalize(true)
	assert.True(t, result.Aborted)
	assert.False(t, result.AllPassed())
	assert.Contains(t, result.String(), "aborted")
}

func TestResultCollectorMisuse(t *testing.T) {
	c := NewResultCollector("run-3")
	assert.Panics(t, func() { c.StartSubGroup("s") })
	assert.Panics(t, func() { c.AddTestResult(&types.TestRunResult{}) })
	c.StartGroup("g")
	c.StartSubGroup("s")
	assert.Panics(t, func() { c.AddTestResult(nil) })
}

func TestResultCollectorEnter(t *testing.T) {
	c := NewResultCollector("run-4")
	c.Enter("g", "a")
	c.AddTestResult(&types.TestRunResult{Name: "t1", Status: types.Passed()})
	c.Enter("g", "a")
	c.AddTestResult(&types.TestRunResult{Name: "t2", Status: types.Passed()})
	c.Enter("g", "b")
	c.EnterGroup("g")
	c.Enter("h", "a")
	c.EnterGroup("empty")

	result := c.Finalize(false)
	require.Len(t, result.Groups, 3)
	require.Len(t, result.Groups[0].SubGroupResults, 2)
	assert.Len(t, result.Groups[0].SubGroupResults[0].TestResults, 2)
	assert.Equal(t, "b", result.Groups[0].SubGroupResults[1].Name)
	assert.Equal(t, "a", result.Groups[1].SubGroupResults[0].Name)
	assert.Empty(t, result.Groups[2].SubGroupResults)
}
