package runner

import (
	"time"

	"github.com/ethereum-optimism/infra/op-conformance/types"
)

// ResultCollector folds the stream of per-test results back into a tree that
// mirrors the corpus. Containers are opened in traversal order, so a complete
// run has the same names, order and cardinality as the input. Through Enter
// they are opened only once a test in them runs, so an aborted run holds
// exactly the tests that finished and no trailing empty containers.
type ResultCollector struct {
	result   *types.RunResults
	group    *types.TestGroupRunResults
	subGroup *types.TestSubGroupRunResults
}

// NewResultCollector creates a new result collector
func NewResultCollector(runID string) *ResultCollector {
	return &ResultCollector{
		result: &types.RunResults{
			RunID: runID,
			Stats: types.ResultStats{StartTime: time.Now()},
		},
	}
}

// StartGroup opens a new group. Subsequent subgroups belong to it.
func (c *ResultCollector) StartGroup(name string) {
	c.closeSubGroup()
	c.closeGroup()
	c.group = &types.TestGroupRunResults{
		Name:  name,
		Stats: types.ResultStats{StartTime: time.Now()},
	}
	c.result.Groups = append(c.result.Groups, c.group)
}

// StartSubGroup opens a new subgroup within the current group.
func (c *ResultCollector) StartSubGroup(name string) {
	if c.group == nil {
		panic("subgroup started outside of a group")
	}
	c.closeSubGroup()
	c.subGroup = &types.TestSubGroupRunResults{
		Name:  name,
		Stats: types.ResultStats{StartTime: time.Now()},
	}
	c.group.SubGroupResults = append(c.group.SubGroupResults, c.subGroup)
}

// EnterGroup makes name the current group, opening it unless it already is.
// Group names are unique within a run.
func (c *ResultCollector) EnterGroup(name string) {
	if c.group == nil || c.group.Name != name {
		c.StartGroup(name)
	}
}

// Enter makes group/subGroup the current subgroup, opening whichever
// containers are not current yet.
func (c *ResultCollector) Enter(group, subGroup string) {
	if c.group == nil || c.group.Name != group {
		c.StartGroup(group)
	}
	if c.subGroup == nil || c.subGroup.Name != subGroup {
		c.StartSubGroup(subGroup)
	}
}

// AddTestResult appends a result to the current subgroup and updates the
// stats at every level.
func (c *ResultCollector) AddTestResult(test *types.TestRunResult) {
	if test == nil {
		panic("test cannot be nil")
	}
	if c.subGroup == nil {
		panic("test result added outside of a subgroup")
	}
	c.subGroup.TestResults = append(c.subGroup.TestResults, test)
	c.subGroup.Stats.Add(test)
	c.group.Stats.Add(test)
	c.result.Stats.Add(test)
}

// Finalize closes all open containers and returns the result tree.
func (c *ResultCollector) Finalize(aborted bool) *types.RunResults {
	c.closeSubGroup()
	c.closeGroup()
	now := time.Now()
	c.result.Aborted = aborted
	c.result.Stats.EndTime = now
	c.result.Duration = now.Sub(c.result.Stats.StartTime)
	return c.result
}

func (c *ResultCollector) closeSubGroup() {
	if c.subGroup != nil {
		c.subGroup.Stats.EndTime = time.Now()
		c.subGroup = nil
	}
}

func (c *ResultCollector) closeGroup() {
	if c.group != nil {
		c.group.Stats.EndTime = time.Now()
		c.group = nil
	}
}
