// Package interrupt provides the cancellation signal observed by the runner
// between tests.
package interrupt

import (
	"context"
	"sync"
	"sync/atomic"
)

// Signal is a thread-safe, one-way cancellation flag. It can be set from any
// goroutine and is read by the runner only at its checkpoints.
type Signal struct {
	cancelled atomic.Bool
}

// New returns an unset signal.
func New() *Signal {
	return &Signal{}
}

// Cancel sets the signal. Calling it more than once is harmless.
func (s *Signal) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether the signal has been set. A nil signal is never
// cancelled.
func (s *Signal) Cancelled() bool {
	if s == nil {
		return false
	}
	return s.cancelled.Load()
}

// CancelOnDone sets the signal once ctx is done. A context that is already
// done sets it before returning. The returned stop function releases the
// watcher without touching the signal.
func (s *Signal) CancelOnDone(ctx context.Context) (stop func()) {
	if ctx.Err() != nil {
		s.Cancel()
	}
	done := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-done:
		}
	}()
	return func() {
		once.Do(func() { close(done) })
	}
}
