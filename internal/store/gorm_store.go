package store

import (
	"context"
	"sync/atomic"
	"time"

	scheduler "github.com/gocronforge/dbscheduler"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dialect names the SQL dialect a GORMStore is backed by. Postgres has
// always supported SELECT ... FOR UPDATE SKIP LOCKED; MySQL only gained it
// in 8.0. Rather than probe the server version at startup, GORMStore
// optimistically reports support for both dialects and lets PickDue itself
// discover, from the error the driver actually returns, that the clause is
// unsupported — at which point PickDue itself switches permanently to a
// GetDue-then-Pick equivalent for the rest of the process's lifetime. The
// poll loop's strategy, chosen once at Start, does not change.
type Dialect int

const (
	DialectMySQL Dialect = iota
	DialectPostgres
)

// GORMStore implements scheduler.Store over a *gorm.DB. Build one with
// OpenMySQL or OpenPostgres, or wrap an already-open *gorm.DB with New.
type GORMStore struct {
	db      *gorm.DB
	dialect Dialect
	logger  scheduler.Logger

	// skipLockedUnsupported is set once PickDue observes the driver reject
	// a SKIP LOCKED clause as a syntax error. It is never cleared: once a
	// server has proven it doesn't understand the clause, GORMStore stops
	// asking.
	skipLockedUnsupported atomic.Bool
	loggedFallback        atomic.Bool
}

// Option configures optional GORMStore behavior at construction time.
type Option func(*GORMStore)

// WithLogger wires a Logger for GORMStore's own diagnostics, most notably
// the one-time warning when it downgrades away from SELECT ... FOR UPDATE
// SKIP LOCKED. Without one, GORMStore logs nothing.
func WithLogger(logger scheduler.Logger) Option {
	return func(s *GORMStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps an already-configured *gorm.DB as a scheduler.Store.
func New(db *gorm.DB, dialect Dialect, opts ...Option) *GORMStore {
	s := &GORMStore{db: db, dialect: dialect, logger: scheduler.NopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ scheduler.Store = (*GORMStore)(nil)

// SupportsSelectForUpdateSkipLocked reports whether PickDue should still
// attempt the fused SKIP LOCKED pick. It starts true for both dialects and
// flips to false for good the first time PickDue catches the driver
// rejecting the clause.
func (s *GORMStore) SupportsSelectForUpdateSkipLocked() bool {
	return !s.skipLockedUnsupported.Load()
}

func (s *GORMStore) Insert(ctx context.Context, id scheduler.TaskInstanceID, executionTime time.Time, payload []byte) error {
	r := row{
		TaskName:      id.TaskName,
		InstanceID:    id.InstanceID,
		TaskData:      payload,
		ExecutionTime: executionTime,
		Version:       1,
	}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return scheduler.ErrAlreadyScheduled
		}
		return err
	}
	return nil
}

func (s *GORMStore) Get(ctx context.Context, id scheduler.TaskInstanceID) (scheduler.Execution, error) {
	var r row
	err := s.db.WithContext(ctx).
		Where("task_name = ? AND task_instance = ?", id.TaskName, id.InstanceID).
		First(&r).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return scheduler.Execution{}, scheduler.ErrExecutionNotFound
		}
		return scheduler.Execution{}, err
	}
	return r.toExecution(), nil
}

func (s *GORMStore) GetDue(ctx context.Context, now time.Time, limit int) ([]scheduler.Execution, error) {
	var rows []row
	err := s.db.WithContext(ctx).
		Where("picked = ? AND execution_time <= ?", false, now).
		Order("execution_time ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toExecutions(rows), nil
}

func (s *GORMStore) Pick(ctx context.Context, id scheduler.TaskInstanceID, expectedVersion int64, now time.Time, pickedBy string) (scheduler.PickResult, error) {
	res := s.db.WithContext(ctx).Model(&row{}).
		Where("task_name = ? AND task_instance = ? AND version = ? AND picked = ? AND execution_time <= ?",
			id.TaskName, id.InstanceID, expectedVersion, false, now).
		Updates(map[string]any{
			"picked":         true,
			"picked_by":      pickedBy,
			"last_heartbeat": now,
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return scheduler.PickResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		return scheduler.PickResult{RowsAffected: 0}, nil
	}
	execution, err := s.Get(ctx, id)
	if err != nil {
		return scheduler.PickResult{}, err
	}
	return scheduler.PickResult{Execution: execution, RowsAffected: int(res.RowsAffected)}, nil
}

// PickDue selects and picks up to limit due rows inside one transaction,
// using SELECT ... FOR UPDATE SKIP LOCKED to let concurrently polling
// schedulers skip past rows that are already locked rather than blocking
// on them. If the driver reports that clause as a syntax error — the
// failure mode a MySQL server older than 8.0 produces — GORMStore treats
// that as proof the clause is unsupported, logs it once, and answers this
// call (and every later one) with the fetchAndLockSeparately-equivalent
// fallback instead of failing the poll tick outright.
func (s *GORMStore) PickDue(ctx context.Context, now time.Time, limit int, pickedBy string) ([]scheduler.Execution, error) {
	if s.skipLockedUnsupported.Load() {
		return s.pickDueFallback(ctx, now, limit, pickedBy)
	}

	var picked []scheduler.Execution

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []row
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("picked = ? AND execution_time <= ?", false, now).
			Order("execution_time ASC").
			Limit(limit).
			Find(&candidates).Error; err != nil {
			return err
		}

		for _, c := range candidates {
			res := tx.Model(&row{}).
				Where("task_name = ? AND task_instance = ? AND version = ?", c.TaskName, c.InstanceID, c.Version).
				Updates(map[string]any{
					"picked":         true,
					"picked_by":      pickedBy,
					"last_heartbeat": now,
					"version":        gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			c.Picked = true
			c.PickedBy = pickedBy
			c.LastHeartbeat = now
			c.Version++
			picked = append(picked, c.toExecution())
		}
		return nil
	})
	if err != nil {
		if s.dialect == DialectMySQL && isMySQLUnsupportedSkipLockedErr(err) {
			s.skipLockedUnsupported.Store(true)
			if s.loggedFallback.CompareAndSwap(false, true) {
				s.logger.Warnw("SELECT ... FOR UPDATE SKIP LOCKED unsupported by this server, falling back to fetch-and-lock-separately for the rest of this process")
			}
			return s.pickDueFallback(ctx, now, limit, pickedBy)
		}
		return nil, err
	}
	return picked, nil
}

// pickDueFallback reimplements PickDue's contract as a plain read followed
// by one conditional update per candidate, the same pair of operations the
// poll loop's fetchAndLockSeparately strategy drives directly. It is what
// PickDue becomes, permanently, once SKIP LOCKED has been proven unsupported.
func (s *GORMStore) pickDueFallback(ctx context.Context, now time.Time, limit int, pickedBy string) ([]scheduler.Execution, error) {
	candidates, err := s.GetDue(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	picked := make([]scheduler.Execution, 0, len(candidates))
	for _, c := range candidates {
		result, err := s.Pick(ctx, c.TaskInstanceID, c.Version, now, pickedBy)
		if err != nil {
			return nil, err
		}
		if result.RowsAffected == 0 {
			continue
		}
		picked = append(picked, result.Execution)
	}
	return picked, nil
}

func (s *GORMStore) UpdateHeartbeat(ctx context.Context, id scheduler.TaskInstanceID, now time.Time) error {
	return s.db.WithContext(ctx).Model(&row{}).
		Where("task_name = ? AND task_instance = ? AND picked = ?", id.TaskName, id.InstanceID, true).
		Updates(map[string]any{"last_heartbeat": now}).Error
}

// Reschedule conditionally updates the row, requiring its stored version to
// still equal expectedVersion: the in-memory Execution a completion or
// failure handler is holding was read at pick time, and another scheduler
// may have since recovered and reassigned the row out from under it.
func (s *GORMStore) Reschedule(ctx context.Context, id scheduler.TaskInstanceID, expectedVersion int64, executionTime time.Time, newPayload []byte, success bool, at time.Time) error {
	updates := map[string]any{
		"task_data":      newPayload,
		"execution_time": executionTime,
		"picked":         false,
		"picked_by":      "",
		"version":        gorm.Expr("version + 1"),
	}
	if success {
		updates["last_success"] = at
		updates["consecutive_failures"] = 0
	} else {
		updates["last_failure"] = at
		updates["consecutive_failures"] = gorm.Expr("consecutive_failures + 1")
	}
	res := s.db.WithContext(ctx).Model(&row{}).
		Where("task_name = ? AND task_instance = ? AND version = ?", id.TaskName, id.InstanceID, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return scheduler.ErrStalePick
	}
	return nil
}

// RescheduleExecutionTime unconditionally moves the row's due time, for
// SchedulerClient.Reschedule: an external caller not holding a Version,
// where a concurrent second caller simply wins the last write.
func (s *GORMStore) RescheduleExecutionTime(ctx context.Context, id scheduler.TaskInstanceID, executionTime time.Time) error {
	res := s.db.WithContext(ctx).Model(&row{}).
		Where("task_name = ? AND task_instance = ?", id.TaskName, id.InstanceID).
		Updates(map[string]any{
			"execution_time": executionTime,
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return scheduler.ErrExecutionNotFound
	}
	return nil
}

// UpdatePayload conditionally replaces the row's payload only, for a task
// that needs to persist state across its own runs without rescheduling.
func (s *GORMStore) UpdatePayload(ctx context.Context, id scheduler.TaskInstanceID, expectedVersion int64, newPayload []byte) error {
	res := s.db.WithContext(ctx).Model(&row{}).
		Where("task_name = ? AND task_instance = ? AND version = ?", id.TaskName, id.InstanceID, expectedVersion).
		Updates(map[string]any{
			"task_data": newPayload,
			"version":   gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return scheduler.ErrStalePick
	}
	return nil
}

// Remove conditionally deletes the row, for ExecutionOperations.Stop on an
// Execution read at pick time, for the same reason Reschedule is
// version-conditioned.
func (s *GORMStore) Remove(ctx context.Context, id scheduler.TaskInstanceID, expectedVersion int64) error {
	res := s.db.WithContext(ctx).
		Where("task_name = ? AND task_instance = ? AND version = ?", id.TaskName, id.InstanceID, expectedVersion).
		Delete(&row{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return scheduler.ErrStalePick
	}
	return nil
}

// Cancel unconditionally deletes the row, for SchedulerClient.Cancel: an
// external caller not holding any particular Version. Removing a row that
// does not exist is not an error.
func (s *GORMStore) Cancel(ctx context.Context, id scheduler.TaskInstanceID) error {
	return s.db.WithContext(ctx).
		Where("task_name = ? AND task_instance = ?", id.TaskName, id.InstanceID).
		Delete(&row{}).Error
}

func (s *GORMStore) GetDeadExecutions(ctx context.Context, now time.Time, deadAfter time.Duration) ([]scheduler.Execution, error) {
	deadline := now.Add(-deadAfter)
	var rows []row
	err := s.db.WithContext(ctx).
		Where("picked = ? AND last_heartbeat <= ?", true, deadline).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toExecutions(rows), nil
}

// GetExecutionsFailingLongerThan returns unpicked rows that haven't
// succeeded in over duration and have failed at least once, for operational
// visibility into stuck recurring tasks.
func (s *GORMStore) GetExecutionsFailingLongerThan(ctx context.Context, now time.Time, duration time.Duration) ([]scheduler.Execution, error) {
	deadline := now.Add(-duration)
	var rows []row
	err := s.db.WithContext(ctx).
		Where("picked = ? AND last_success <= ? AND consecutive_failures > 0", false, deadline).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toExecutions(rows), nil
}

// GetExecutionsForTask returns every row for taskName, across every
// instance id, for SchedulerClient.GetScheduledExecutionsForTask.
func (s *GORMStore) GetExecutionsForTask(ctx context.Context, taskName string) ([]scheduler.Execution, error) {
	var rows []row
	err := s.db.WithContext(ctx).
		Where("task_name = ?", taskName).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toExecutions(rows), nil
}

func toExecutions(rows []row) []scheduler.Execution {
	out := make([]scheduler.Execution, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toExecution())
	}
	return out
}
