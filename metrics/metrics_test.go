package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-conformance/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			assert.Regexp(t, validLabelRegex, result)
		})
	}
}

func TestRecordErrorDetails(t *testing.T) {
	RecordErrorDetails("store", nil)
	RecordErrorDetails("store", errors.New("disk full"))
	assert.Equal(t, float64(1), testutil.ToFloat64(errorsTotal.WithLabelValues("store.disk_full")))
}

func TestRecordTest(t *testing.T) {
	RecordTest("run-metrics", "frontier", types.Passed(), time.Second)
	RecordTest("run-metrics", "frontier", types.BackendError("bad"), time.Second)
	RecordTest("run-metrics", "frontier", types.Passed(), time.Second)
	RecordTest("run-metrics", "frontier", types.TestStatus{Kind: "bogus"}, time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(testsTotal.WithLabelValues("run-metrics", "frontier", "passed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(testsTotal.WithLabelValues("run-metrics", "frontier", "backend_error")))
	assert.Equal(t, float64(0), testutil.ToFloat64(testsTotal.WithLabelValues("run-metrics", "frontier", "bogus")))
}

func TestRecordRun(t *testing.T) {
	stats := types.ResultStats{Total: 3, Passed: 1, Mismatches: 2}
	RecordRun("run-summary", true, stats, 2*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(runResults.WithLabelValues("run-summary", RunAborted)))
	assert.Equal(t, float64(3), testutil.ToFloat64(runTests.WithLabelValues("run-summary", "total")))
	assert.Equal(t, float64(2), testutil.ToFloat64(runTests.WithLabelValues("run-summary", "state_mismatch")))
	assert.Equal(t, float64(2), testutil.ToFloat64(runDuration.WithLabelValues("run-summary")))
}

func TestRecordStoreWrite(t *testing.T) {
	// just test that it doesn't panic
	RecordStoreWrite(time.Millisecond)
}
