package runner

// Run configuration constants
const (
	// DefaultProgressMode is used when no progress mode is configured
	DefaultProgressMode = ProgressPlain

	// DefaultResumeMode reruns every test
	DefaultResumeMode = ResumeAll

	// Span names
	runSpanName        = "conformance run"
	groupSpanFormat    = "group %s"
	subGroupSpanFormat = "subgroup %s"
	testSpanFormat     = "test %s"
	runStateErrLabel   = "run_state"
)
