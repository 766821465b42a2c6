package reporting

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-conformance/types"
)

// TableFormatter renders a run's result tree as a table.
type TableFormatter struct {
	title     string
	showTests bool
}

// NewTableFormatter creates a table formatter. With showTests false only
// group and subgroup rows are rendered.
func NewTableFormatter(title string, showTests bool) *TableFormatter {
	return &TableFormatter{title: title, showTests: showTests}
}

// Format renders the results. The output contains ANSI colour codes.
func (tf *TableFormatter) Format(results *types.RunResults) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(fmt.Sprintf("%s (%s)", tf.title, formatDuration(results.Duration)))

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Tests", "Passed", "Mismatch", "Error", "Fault", "Status",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 120, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Mismatch", Align: text.AlignRight},
		{Name: "Error", Align: text.AlignRight},
		{Name: "Fault", Align: text.AlignRight},
	})

	for _, group := range results.Groups {
		t.AppendRow(statsRow("Group", group.Name, group.Stats))
		for i, subGroup := range group.SubGroupResults {
			prefix := "├──"
			if i == len(group.SubGroupResults)-1 {
				prefix = "└──"
			}
			t.AppendRow(statsRow("SubGroup", fmt.Sprintf("%s %s", prefix, subGroup.Name), subGroup.Stats))
			if !tf.showTests {
				continue
			}
			for _, test := range subGroup.TestResults {
				t.AppendRow(table.Row{
					"Test",
					fmt.Sprintf("    %s", test.Name),
					formatTestDuration(test),
					"", "", "", "", "",
					statusLabel(test.Status),
				})
			}
		}
		t.AppendSeparator()
	}

	switch {
	case results.Stats.Failed() > 0:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case results.Aborted:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	// run IDs are case sensitive
	t.Style().Format.Footer = text.FormatDefault

	t.AppendFooter(table.Row{
		"TOTAL",
		runLabel(results),
		formatDuration(results.Duration),
		results.Stats.Total,
		results.Stats.Passed,
		results.Stats.Mismatches,
		results.Stats.BackendErrors,
		results.Stats.Faults,
		overallStatus(results),
	})

	t.Render()
	return buf.String()
}

func statsRow(kind, name string, stats types.ResultStats) table.Row {
	return table.Row{
		kind,
		name,
		formatDuration(stats.EndTime.Sub(stats.StartTime)),
		stats.Total,
		stats.Passed,
		stats.Mismatches,
		stats.BackendErrors,
		stats.Faults,
		containerStatus(stats),
	}
}

func runLabel(results *types.RunResults) string {
	if results.Stats.Resumed > 0 {
		return fmt.Sprintf("run %s (%d resumed)", results.RunID, results.Stats.Resumed)
	}
	return "run " + results.RunID
}

func containerStatus(stats types.ResultStats) string {
	switch {
	case stats.Total == 0:
		return "-"
	case stats.Failed() > 0:
		return "FAIL"
	default:
		return "PASS"
	}
}

func overallStatus(results *types.RunResults) string {
	switch {
	case results.Aborted:
		return "ABORTED"
	case results.Stats.Failed() > 0:
		return "FAIL"
	default:
		return "PASS"
	}
}

func statusLabel(status types.TestStatus) string {
	switch status.Kind {
	case types.StatusPassed:
		return "PASS"
	case types.StatusStateMismatch:
		return "MISMATCH"
	case types.StatusBackendError:
		return "ERROR"
	case types.StatusInternalFault:
		return "FAULT"
	default:
		return string(status.Kind)
	}
}

func formatTestDuration(test *types.TestRunResult) string {
	if test.Resumed {
		return "resumed"
	}
	return formatDuration(test.Duration)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Second {
		return d.Truncate(time.Millisecond).String()
	}
	return d.Truncate(10 * time.Millisecond).String()
}
