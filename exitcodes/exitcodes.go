// Package exitcodes defines the exit codes used by op-conformance.
package exitcodes

// Exit code constants used by op-conformance:
//
// * Success (0): the run completed, whatever the individual test results
// * TestFailure (1): with --strict, one or more tests did not pass
// * RuntimeErr (2): configuration, I/O or persistence failures
// * Interrupted (130): the run was aborted by the cancellation signal
const (
	Success     = 0   // Run completed
	TestFailure = 1   // Strict mode and some test did not pass
	RuntimeErr  = 2   // Runtime errors
	Interrupted = 130 // Aborted between tests
)
