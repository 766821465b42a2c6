// Package runner drives a conformance run over a loaded corpus.
//
// The main components are:
//   - Runner: Traverses group, subgroup and test in corpus order, one test at a time
//   - ClassifyOutcome: Turns a backend outcome into a persisted TestStatus
//   - ResultCollector: Folds per-test results into a tree mirroring the corpus
//   - ProgressReporter: Announces each test and its completion (plain lines or a live bar)
//
// For every test the order is fixed: the backend runs to completion, the status
// is persisted, progress is reported, and only then is the cancellation signal
// consulted before the next test starts.
package runner
