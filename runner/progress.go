package runner

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

type ProgressMode string

const (
	ProgressPlain ProgressMode = "plain"
	ProgressBar   ProgressMode = "bar"
)

// ProgressModes lists every supported mode.
var ProgressModes = []ProgressMode{ProgressPlain, ProgressBar}

func (m ProgressMode) IsValid() bool {
	return m == ProgressPlain || m == ProgressBar
}

// ProgressReporter is told about each test as it starts and finishes. It only
// writes to the user-facing output.
type ProgressReporter interface {
	Announce(testName string)
	CompleteOne()
}

// NewProgressReporter creates the reporter for mode, sized for total tests.
// The returned stop func must be called once the run is over.
func NewProgressReporter(mode ProgressMode, total int, out io.Writer) (ProgressReporter, func(), error) {
	if out == nil {
		out = os.Stdout
	}
	switch mode {
	case ProgressPlain, "":
		return newPlainReporter(total, out), func() {}, nil
	case ProgressBar:
		r := newBarReporter(total, out)
		return r, r.stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown progress mode %q", mode)
	}
}

// plainReporter prints one line per test.
type plainReporter struct {
	out   io.Writer
	total int
	index int
}

func newPlainReporter(total int, out io.Writer) *plainReporter {
	return &plainReporter{out: out, total: total}
}

func (p *plainReporter) Announce(testName string) {
	fmt.Fprintf(p.out, "(%d/%d) Running %s...\n", p.index+1, p.total, testName)
}

func (p *plainReporter) CompleteOne() {
	p.index++
}

// barReporter renders a live progress bar with the current test as message.
type barReporter struct {
	pw      progress.Writer
	tracker *progress.Tracker
	done    chan struct{}
	once    sync.Once
}

func newBarReporter(total int, out io.Writer) *barReporter {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(true)
	pw.SetTrackerLength(40)
	pw.SetMessageLength(50)
	pw.SetStyle(progress.StyleDefault)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true
	pw.Style().Visibility.Value = true

	tracker := &progress.Tracker{
		Message: "Running conformance tests",
		Total:   int64(total),
		Units:   progress.UnitsDefault,
	}
	pw.AppendTracker(tracker)

	r := &barReporter{pw: pw, tracker: tracker, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		pw.Render()
	}()
	return r
}

func (b *barReporter) Announce(testName string) {
	b.tracker.UpdateMessage(testName)
}

func (b *barReporter) CompleteOne() {
	b.tracker.Increment(1)
}

func (b *barReporter) stop() {
	b.once.Do(func() {
		// rendering ends by itself once the only tracker is done
		if !b.tracker.IsDone() {
			b.tracker.MarkAsDone()
		}
		<-b.done
	})
}
