package scheduler

import "time"

// Schedule computes the next execution time for a recurring task, given the
// time the previous execution completed. Implementations
// must be stateless and safe for concurrent use across many executions.
type Schedule interface {
	NextExecutionTime(previousCompletionTime time.Time) time.Time
}

// FixedDelay schedules the next run Delay after the previous run completed,
// regardless of how long that run took.
type FixedDelay struct {
	Delay time.Duration
}

// NewFixedDelaySchedule returns a Schedule that fires delay after each
// completion.
func NewFixedDelaySchedule(delay time.Duration) FixedDelay {
	return FixedDelay{Delay: delay}
}

func (f FixedDelay) NextExecutionTime(previousCompletionTime time.Time) time.Time {
	return previousCompletionTime.Add(f.Delay)
}

// FixedRate is currently equivalent to FixedDelay: Schedule.NextExecutionTime
// only ever receives the previous run's completion time, never its own
// scheduled execution time, so a "next run Interval after the run was due"
// semantics — one where a slow execution doesn't push out the following
// ones — cannot be computed from the information a Schedule is handed. Use
// FixedDelay directly; this type is kept as a distinct name for callers that
// want to migrate to true fixed-rate semantics later without changing their
// call site, not because it behaves differently today.
type FixedRate struct {
	Interval time.Duration
}

// NewFixedRateSchedule returns a Schedule that currently fires Interval
// after each completion, identically to FixedDelay; see the FixedRate
// doc comment.
func NewFixedRateSchedule(interval time.Duration) FixedRate {
	return FixedRate{Interval: interval}
}

func (f FixedRate) NextExecutionTime(previousCompletionTime time.Time) time.Time {
	return previousCompletionTime.Add(f.Interval)
}

// DailySchedule fires at the next occurrence of one of Times (time-of-day,
// evaluated against its own location) strictly after the previous
// completion time.
type DailySchedule struct {
	Times    []time.Time
	Location *time.Location
}

// NewDailySchedule returns a Schedule that fires daily at each of the given
// times of day, in loc (time.Local if nil).
func NewDailySchedule(loc *time.Location, times ...time.Time) DailySchedule {
	if loc == nil {
		loc = time.Local
	}
	return DailySchedule{Times: times, Location: loc}
}

func (d DailySchedule) NextExecutionTime(previousCompletionTime time.Time) time.Time {
	if len(d.Times) == 0 {
		return previousCompletionTime
	}
	base := previousCompletionTime.In(d.Location)
	var best time.Time
	for day := 0; day < 2; day++ {
		y, m, dd := base.Date()
		dd += day
		for _, t := range d.Times {
			candidate := time.Date(y, m, dd, t.Hour(), t.Minute(), t.Second(), 0, d.Location)
			if candidate.After(base) && (best.IsZero() || candidate.Before(best)) {
				best = candidate
			}
		}
		if !best.IsZero() {
			break
		}
	}
	return best
}
