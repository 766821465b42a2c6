package runner

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPlainReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter, stop, err := NewProgressReporter(ProgressPlain, 3, &buf)
	require.NoError(t, err)
	defer stop()

	reporter.Announce("frontier/create/t1")
	reporter.CompleteOne()
	reporter.Announce("frontier/create/t2")
	reporter.CompleteOne()
	reporter.Announce("frontier/call/t3")

	assert.Equal(t, "(1/3) Running frontier/create/t1...\n"+
		"(2/3) Running frontier/create/t2...\n"+
		"(3/3) Running frontier/call/t3...\n", buf.String())
}

func TestBarReporter(t *testing.T) {
	defer goleak.VerifyNone(t)
	var buf bytes.Buffer
	reporter, stop, err := NewProgressReporter(ProgressBar, 2, &buf)
	require.NoError(t, err)

	bar, ok := reporter.(*barReporter)
	require.True(t, ok)

	reporter.Announce("g/s/t1")
	reporter.CompleteOne()
	assert.Equal(t, int64(1), bar.tracker.Value())
	reporter.Announce("g/s/t2")
	reporter.CompleteOne()

	stop()
	assert.True(t, bar.tracker.IsDone())
	// stopping twice is harmless
	stop()
}

func TestBarReporterStopBeforeCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)
	var buf bytes.Buffer
	reporter, stop, err := NewProgressReporter(ProgressBar, 5, &buf)
	require.NoError(t, err)
	reporter.Announce("g/s/t1")
	reporter.CompleteOne()
	stop()
	assert.True(t, reporter.(*barReporter).tracker.IsDone())
}

func TestNewProgressReporterUnknownMode(t *testing.T) {
	_, _, err := NewProgressReporter("fancy", 1, nil)
	require.Error(t, err)
	assert.True(t, ProgressBar.IsValid())
	assert.False(t, ProgressMode("fancy").IsValid())
}
