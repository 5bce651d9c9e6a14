package scheduler

import "errors"

var (
	// ErrStalePick is returned when a version-conditioned store operation
	// (Pick, Reschedule, UpdatePayload, Remove) affects zero rows because
	// the row's Version no longer matches what the caller observed: another
	// scheduler instance already picked, rescheduled, or removed the
	// execution first. It is non-fatal; completion/failure/dead handlers
	// should treat it as "this execution is no longer mine" and return.
	ErrStalePick = errors.New("scheduler: execution was picked by another process")

	// ErrUnknownTask is returned when an execution references a task name
	// that is not registered with the running Scheduler's task registry.
	ErrUnknownTask = errors.New("scheduler: unknown task name")

	// ErrExecutionNotFound is returned when an operation addresses a
	// TaskInstanceID that has no corresponding row in the execution store.
	ErrExecutionNotFound = errors.New("scheduler: execution not found")

	// ErrAlreadyScheduled is returned by Schedule when a row already exists
	// for the given TaskInstanceID.
	ErrAlreadyScheduled = errors.New("scheduler: task instance already scheduled")

	// ErrSchedulerNotStarted and ErrSchedulerStopped name the scheduler's
	// lifecycle states; no operation in this package returns them.
	ErrSchedulerNotStarted = errors.New("scheduler: not started")
	ErrSchedulerStopped    = errors.New("scheduler: stopped")
)
