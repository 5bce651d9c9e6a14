package scheduler

import (
	"context"
	"time"
)

// PickResult is returned by Store.Pick. RowsAffected is zero when another
// scheduler instance won the race for the same execution; callers must
// treat that as ErrStalePick, not as an error worth logging loudly.
type PickResult struct {
	Execution    Execution
	RowsAffected int
}

// Store is the persistence contract the rest of the package depends on. It
// is satisfied by a GORM-backed implementation over MySQL or PostgreSQL,
// but any implementation that honors the optimistic-locking semantics below
// is valid, including one backed by a fake for tests.
//
// Pick, Reschedule, UpdatePayload and Remove are conditional on the row's
// current Version; an implementation must report how many rows such a
// statement affected so callers can detect a lost race without a separate
// read. RescheduleExecutionTime, Cancel and UpdateHeartbeat do not check
// Version.
type Store interface {
	// Insert creates a new row for instance, due at executionTime. It
	// returns ErrAlreadyScheduled if a row already exists for the instance.
	Insert(ctx context.Context, instance TaskInstanceID, executionTime time.Time, payload []byte) error

	// Get returns the current row for id, or ErrExecutionNotFound.
	Get(ctx context.Context, id TaskInstanceID) (Execution, error)

	// GetDue returns up to limit unpicked rows with ExecutionTime <= now,
	// ordered by ExecutionTime ascending. Used by the FetchAndLockSeparately
	// poll strategy, which picks each candidate individually afterward.
	GetDue(ctx context.Context, now time.Time, limit int) ([]Execution, error)

	// Pick conditionally marks the row for id as picked by pickedBy,
	// provided it is currently unpicked and its ExecutionTime <= now and its
	// Version still equals expectedVersion. RowsAffected is 1 on success, 0
	// if another process already picked it.
	Pick(ctx context.Context, id TaskInstanceID, expectedVersion int64, now time.Time, pickedBy string) (PickResult, error)

	// PickDue atomically selects and picks up to limit due rows in one
	// transaction (SELECT ... FOR UPDATE SKIP LOCKED, then an UPDATE per
	// locked row) and
	// returns exactly the rows this call won. Used by the
	// SelectForUpdateSkipLocked poll strategy on dialects that support it.
	PickDue(ctx context.Context, now time.Time, limit int, pickedBy string) ([]Execution, error)

	// UpdateHeartbeat refreshes LastHeartbeat for a picked row. It is a
	// no-op race if the row was concurrently unpicked (stopped/rescheduled
	// by the handler finishing first); implementations should treat zero
	// rows affected as non-fatal.
	UpdateHeartbeat(ctx context.Context, id TaskInstanceID, now time.Time) error

	// Reschedule updates the row to run again at executionTime with
	// newPayload, clears Picked/PickedBy, and records success or failure per
	// success, provided the row's Version still equals expectedVersion. It is
	// used by completion and failure handlers (and the dead-execution
	// detector's reschedule path), whose in-memory Execution was obtained
	// from a Pick and must not clobber a row another scheduler has since
	// reclaimed. Returns ErrStalePick if expectedVersion no longer matches.
	Reschedule(ctx context.Context, id TaskInstanceID, expectedVersion int64, executionTime time.Time, newPayload []byte, success bool, at time.Time) error

	// RescheduleExecutionTime unconditionally updates the row's
	// ExecutionTime, bumping Version but without checking it first. It backs
	// SchedulerClient.Reschedule, an external, ad hoc request to move an
	// unpicked row's due time where, per spec, concurrent callers racing on
	// the same id are resolved last-caller-wins rather than one of them
	// losing a version check.
	RescheduleExecutionTime(ctx context.Context, id TaskInstanceID, executionTime time.Time) error

	// UpdatePayload conditionally replaces the row's payload, provided its
	// Version still equals expectedVersion, without touching ExecutionTime,
	// Picked, or the failure-streak fields. It lets a task mutate state
	// carried across its own runs without participating in rescheduling.
	// Returns ErrStalePick if expectedVersion no longer matches.
	UpdatePayload(ctx context.Context, id TaskInstanceID, expectedVersion int64, newPayload []byte) error

	// Remove conditionally deletes the row for id, provided its Version
	// still equals expectedVersion. Used by completion/failure/dead handlers
	// that call ExecutionOperations.Stop on an Execution obtained from a
	// Pick. Returns ErrStalePick if expectedVersion no longer matches.
	Remove(ctx context.Context, id TaskInstanceID, expectedVersion int64) error

	// Cancel unconditionally deletes the row for id. It backs
	// SchedulerClient.Cancel, an external request that is not holding any
	// particular Version. Removing a row that does not exist is not an
	// error.
	Cancel(ctx context.Context, id TaskInstanceID) error

	// GetDeadExecutions returns picked rows whose LastHeartbeat is older
	// than deadAfter, measured from now.
	GetDeadExecutions(ctx context.Context, now time.Time, deadAfter time.Duration) ([]Execution, error)

	// GetExecutionsFailingLongerThan returns unpicked rows whose LastSuccess
	// is older than now-duration and whose ConsecutiveFailures is greater
	// than zero: tasks that have been failing for a while, for operational
	// visibility via Scheduler.GetFailingExecutions.
	GetExecutionsFailingLongerThan(ctx context.Context, now time.Time, duration time.Duration) ([]Execution, error)

	// GetExecutionsForTask returns every row for the named task, across
	// every instance id. Used by SchedulerClient.GetScheduledExecutionsForTask.
	GetExecutionsForTask(ctx context.Context, taskName string) ([]Execution, error)

	// SupportsSelectForUpdateSkipLocked reports whether the underlying
	// dialect can execute PickDue atomically. The due-poll loop falls back
	// to FetchAndLockSeparately when this is false.
	SupportsSelectForUpdateSkipLocked() bool
}
