package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-conformance/types"
)

const (
	MetricsNamespace = "conformance"

	RunCompleted = "completed"
	RunAborted   = "aborted"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of executed tests by result",
	}, []string{
		"run_id",
		"group",
		"result",
	})

	testDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Backend execution time per test",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{
		"result",
	})

	storeWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "run_state_write_seconds",
		Help:      "Time taken to durably persist one test status",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Outcome of a conformance run",
	}, []string{
		"run_id",
		"result",
	})

	runTests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests",
		Help:      "Number of tests in a run by result",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a conformance run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordTest(runID string, group string, status types.TestStatus, duration time.Duration) {
	if !status.Kind.IsValid() {
		log.Error("RecordTest - invalid result", "result", status.Kind)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"run_id", runID,
			"group", group,
			"result", status.Kind)
	}
	testsTotal.WithLabelValues(runID, group, string(status.Kind)).Inc()
	testDuration.WithLabelValues(string(status.Kind)).Observe(duration.Seconds())
}

func RecordStoreWrite(duration time.Duration) {
	storeWriteDuration.Observe(duration.Seconds())
}

func RecordRun(runID string, aborted bool, stats types.ResultStats, duration time.Duration) {
	result := RunCompleted
	if aborted {
		result = RunAborted
	}
	runResults.WithLabelValues(runID, result).Set(1)
	runTests.WithLabelValues(runID, "total").Set(float64(stats.Total))
	runTests.WithLabelValues(runID, string(types.StatusPassed)).Set(float64(stats.Passed))
	runTests.WithLabelValues(runID, string(types.StatusBackendError)).Set(float64(stats.BackendErrors))
	runTests.WithLabelValues(runID, string(types.StatusInternalFault)).Set(float64(stats.Faults))
	runTests.WithLabelValues(runID, string(types.StatusStateMismatch)).Set(float64(stats.Mismatches))
	runTests.WithLabelValues(runID, "resumed").Set(float64(stats.Resumed))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}
