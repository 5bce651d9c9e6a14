package scheduler

import "time"

// Clock is the pluggable time source used throughout the scheduler. Tests
// supply a fake so due-time comparisons are deterministic.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
