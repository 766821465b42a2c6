package interrupt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSignal(t *testing.T) {
	s := New()
	assert.False(t, s.Cancelled())
	s.Cancel()
	s.Cancel()
	assert.True(t, s.Cancelled())

	var nilSignal *Signal
	assert.False(t, nilSignal.Cancelled())
}

func TestCancelOnDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()
	stop := s.CancelOnDone(ctx)
	defer stop()

	assert.False(t, s.Cancelled())
	cancel()
	assert.Eventually(t, s.Cancelled, time.Second, 5*time.Millisecond)
}

func TestCancelOnDoneStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()
	stop := s.CancelOnDone(ctx)
	stop()
	stop()

	// let the watcher observe stop before the context is cancelled
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, s.Cancelled())
}

func TestCancelOnDoneAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()
	stop := s.CancelOnDone(ctx)
	defer stop()
	assert.True(t, s.Cancelled())
}
