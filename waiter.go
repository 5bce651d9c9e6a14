package scheduler

import (
	"context"
	"sync"
	"time"
)

// Waiter suspends a background loop for up to a configured duration, but can
// be woken early by Wake. A Wake delivered while nobody is waiting is not
// lost: the next DoWait returns immediately and the wake state resets.
//
// DoWait's timeout always runs off the wall clock (time.NewTimer), not the
// Clock passed to NewWaiter: Clock only exposes Now, not a fake-timer
// primitive, so there is no way to derive a controllable timer from it
// without pulling in a separate fake-timer dependency. clock is kept on the
// struct for callers that want a consistent Now() alongside the wait, and
// as the natural extension point if a timer-capable Clock is added later.
type Waiter struct {
	duration time.Duration
	clock    Clock

	mu   sync.Mutex
	wake chan struct{}
}

// NewWaiter builds a Waiter that sleeps up to duration between calls to
// DoWait.
func NewWaiter(duration time.Duration, clock Clock) *Waiter {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Waiter{
		duration: duration,
		clock:    clock,
		wake:     make(chan struct{}, 1),
	}
}

// DoWait suspends the caller for up to the configured duration, returning
// earlier if Wake is called or ctx is cancelled. The return value reports
// whether ctx was the reason for waking.
func (w *Waiter) DoWait(ctx context.Context) (cancelled bool) {
	timer := time.NewTimer(w.duration)
	defer timer.Stop()

	select {
	case <-w.wake:
		return false
	case <-timer.C:
		return false
	case <-ctx.Done():
		return true
	}
}

// Wake causes an in-progress DoWait to return immediately. If no DoWait is
// currently in progress, the next call to DoWait returns immediately instead
// of sleeping.
func (w *Waiter) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
		// already has a pending wake queued
	}
}
