package scheduler

import (
	"context"
	"time"
)

// ExecutionContext carries the state of the execution currently running a
// task handler: the row as it was picked, and the Task definition it
// belongs to.
type ExecutionContext struct {
	Execution Execution
	Task      Task
}

// ExecutionOperations lets a completion or failure handler decide what
// happens to the row after a handler returns. Exactly one method should be
// called per execution; calling none leaves the row picked and it will
// eventually be reclaimed by the dead-execution detector.
type ExecutionOperations interface {
	// Stop removes the execution's row entirely. No further runs occur.
	Stop() error
	// Reschedule updates the row to run again at executionTime with
	// newPayload and clears the pick. After a successful run it resets the
	// failure streak; after a failure it increments it. A []byte newPayload
	// is stored as is; any other value is serialized with the task's
	// Serializer.
	Reschedule(executionTime time.Time, newPayload any) error
	// UpdatePayload replaces the row's payload in place, without touching
	// its due time or failure-streak state. It lets a handler persist state
	// carried across runs without also rescheduling.
	UpdatePayload(newPayload any) error
}

// RecurringInstanceID is the well-known instance id a recurring task's
// single row is kept under, since a recurring task has exactly one
// perpetual instance rather than one row per scheduled run.
const RecurringInstanceID = "recurring"

// ExecutionHandler performs the actual work of a task instance. instance
// carries the task name and instance id; its Payload is not filled in, and
// the serialized payload is in execCtx.Execution.Payload. The handler
// runs with the heartbeat updater keeping the row's lease alive; it must
// respect ctx cancellation on shutdown.
type ExecutionHandler func(ctx context.Context, instance TaskInstance, execCtx ExecutionContext) error

// CompletionHandler decides what happens to a row after its ExecutionHandler
// returns nil.
type CompletionHandler func(execCtx ExecutionContext, ops ExecutionOperations) error

// FailureHandler decides what happens to a row after its ExecutionHandler
// returns a non-nil error, or after the dead-execution detector reclaims it.
type FailureHandler func(execCtx ExecutionContext, ops ExecutionOperations) error

// Task is the static definition of a schedulable unit of work: a name,
// optionally a Schedule for recurring instances, the handler that performs
// the work, and the handlers that decide the row's fate afterward. Tasks are
// registered once with a Scheduler's task registry and looked up by name for
// every execution of every instance.
type Task struct {
	Name       string
	Schedule   Schedule
	Serializer Serializer

	Execute    ExecutionHandler
	OnComplete CompletionHandler
	OnFailure  FailureHandler
	OnDead     FailureHandler
}

// serializerOrDefault returns t.Serializer, falling back to JSONSerializer.
func (t Task) serializerOrDefault() Serializer {
	if t.Serializer != nil {
		return t.Serializer
	}
	return defaultSerializer
}

// CompleteRemove is a CompletionHandler that deletes the row on success. It
// is the default completion behavior for one-time and custom tasks.
func CompleteRemove(_ ExecutionContext, ops ExecutionOperations) error {
	return ops.Stop()
}

// CompleteReschedule returns a CompletionHandler that reschedules the next
// run per schedule, relative to the completion time, keeping the previous
// payload. It is the default completion behavior for recurring tasks.
func CompleteReschedule(schedule Schedule, clock Clock) CompletionHandler {
	if clock == nil {
		clock = SystemClock{}
	}
	return func(execCtx ExecutionContext, ops ExecutionOperations) error {
		next := schedule.NextExecutionTime(clock.Now())
		return ops.Reschedule(next, execCtx.Execution.Payload)
	}
}

// RescheduleDeadExecution returns a FailureHandler that reschedules the
// execution to run again right now, clearing the pick, instead of waiting
// for the task's own Schedule to say when the next run is due. It is the
// default dead-execution handler for recurring tasks: a crash recovered by
// another scheduler should resume on the very next poll, not sit idle until
// the interval that would have applied to a normally-completed run.
func RescheduleDeadExecution(clock Clock) FailureHandler {
	if clock == nil {
		clock = SystemClock{}
	}
	return func(execCtx ExecutionContext, ops ExecutionOperations) error {
		return ops.Reschedule(clock.Now(), execCtx.Execution.Payload)
	}
}

// CancelDeadExecution is a FailureHandler that removes the row outright when
// its owner is found dead, for tasks that should not resume after a crash.
func CancelDeadExecution(_ ExecutionContext, ops ExecutionOperations) error {
	return ops.Stop()
}

// FailRetryLater returns a FailureHandler that reschedules the execution to
// run again after delay, keeping its payload. It applies after every
// failure, so the execution is retried until it succeeds; it sets no cap on
// the number of retries. NewOneTimeTask uses it as its failure handler.
func FailRetryLater(delay time.Duration, clock Clock) FailureHandler {
	if clock == nil {
		clock = SystemClock{}
	}
	return func(execCtx ExecutionContext, ops ExecutionOperations) error {
		return ops.Reschedule(clock.Now().Add(delay), execCtx.Execution.Payload)
	}
}

// FailRetryWithBackoff returns a FailureHandler that reschedules the
// execution after base * 2^consecutiveFailures, capped at max, keeping its
// payload. consecutiveFailures is the streak observed before this failure
// was recorded, so the first retry after an initial failure waits base.
func FailRetryWithBackoff(base, maxDelay time.Duration, clock Clock) FailureHandler {
	if clock == nil {
		clock = SystemClock{}
	}
	return func(execCtx ExecutionContext, ops ExecutionOperations) error {
		delay := base
		for i := 0; i < execCtx.Execution.ConsecutiveFailures; i++ {
			if delay >= maxDelay {
				delay = maxDelay
				break
			}
			delay *= 2
		}
		if delay > maxDelay {
			delay = maxDelay
		}
		return ops.Reschedule(clock.Now().Add(delay), execCtx.Execution.Payload)
	}
}

// FailStop is a FailureHandler that removes the row on failure, i.e. gives
// up after the first failed attempt.
func FailStop(_ ExecutionContext, ops ExecutionOperations) error {
	return ops.Stop()
}

// NewOneTimeTask registers an ExecutionHandler over typed payloads of T. It
// replaces a plain/typed split: passing struct{} as T yields an untyped
// one-time task. After each failure the execution is retried after
// retryDelay, with no cap on the number of retries; on success it is removed.
func NewOneTimeTask[T any](name string, retryDelay time.Duration, handler func(ctx context.Context, instance TaskInstanceID, data T) error) Task {
	return Task{
		Name: name,
		Execute: func(ctx context.Context, instance TaskInstance, execCtx ExecutionContext) error {
			var data T
			if err := execCtx.Task.serializerOrDefault().Deserialize(execCtx.Execution.Payload, &data); err != nil {
				return err
			}
			return handler(ctx, instance.TaskInstanceID, data)
		},
		OnComplete: CompleteRemove,
		OnFailure:  FailRetryLater(retryDelay, nil),
		OnDead:     FailRetryLater(retryDelay, nil),
	}
}

// NewRecurringTask registers an ExecutionHandler that runs on schedule
// indefinitely. A failed run is retried at the next scheduled occurrence
// rather than rescheduled separately, matching the upstream semantics of
// recurring tasks: the schedule, not the failure handler, governs cadence.
func NewRecurringTask(name string, schedule Schedule, handler func(ctx context.Context, instance TaskInstanceID) error) Task {
	return Task{
		Name:     name,
		Schedule: schedule,
		Execute: func(ctx context.Context, instance TaskInstance, execCtx ExecutionContext) error {
			return handler(ctx, instance.TaskInstanceID)
		},
		OnComplete: CompleteReschedule(schedule, nil),
		OnFailure:  FailureHandler(CompleteReschedule(schedule, nil)),
		OnDead:     RescheduleDeadExecution(nil),
	}
}

// NewCustomTask registers a Task with caller-supplied completion and failure
// handlers, for tasks whose fate after success or failure is neither "retry
// after a fixed delay" nor "reschedule on a fixed cadence" — e.g. exponential backoff, or a
// cap on consecutive failures.
func NewCustomTask(name string, execute ExecutionHandler, onComplete CompletionHandler, onFailure FailureHandler) Task {
	if onComplete == nil {
		onComplete = CompleteRemove
	}
	if onFailure == nil {
		onFailure = FailStop
	}
	return Task{
		Name:       name,
		Execute:    execute,
		OnComplete: onComplete,
		OnFailure:  onFailure,
		OnDead:     onFailure,
	}
}
