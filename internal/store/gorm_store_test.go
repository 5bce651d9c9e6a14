package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	scheduler "github.com/gocronforge/dbscheduler"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// newMockStore wires a GORMStore to a sqlmock-backed *sql.DB, the way the
// rest of this codebase's DAO layer would be tested against a real
// database: no in-memory fake, the actual SQL GORM generates is asserted
// against. SkipDefaultTransaction keeps GORM from wrapping each write in its
// own BEGIN/COMMIT, so every expectation below lines up with one statement.
func newMockStore(t *testing.T) (*GORMStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return New(gdb, DialectMySQL), mock
}

func TestGORMStore_Insert(t *testing.T) {
	s, mock := newMockStore(t)
	id := scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO `scheduled_tasks`").
		WithArgs("t", "1", sqlmock.AnyArg(), at, false, "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 0, int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Insert(context.Background(), id, at, []byte(`"payload"`))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGORMStore_Insert_DuplicateKeyMapsToErrAlreadyScheduled(t *testing.T) {
	s, mock := newMockStore(t)
	id := scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"}
	at := time.Now()

	mock.ExpectExec("INSERT INTO `scheduled_tasks`").
		WillReturnError(&mysqldriver.MySQLError{Number: mysqlDuplicateKeyErrorNumber, Message: "duplicate entry"})

	err := s.Insert(context.Background(), id, at, nil)
	require.ErrorIs(t, err, scheduler.ErrAlreadyScheduled)
}

func TestGORMStore_Get_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `scheduled_tasks`").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := s.Get(context.Background(), scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"})
	require.ErrorIs(t, err, scheduler.ErrExecutionNotFound)
}

func TestGORMStore_Get_Found(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	cols := []string{"task_name", "task_instance", "task_data", "execution_time", "picked", "picked_by", "last_heartbeat", "last_success", "last_failure", "consecutive_failures", "version"}
	mock.ExpectQuery("SELECT \\* FROM `scheduled_tasks`").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("t", "1", []byte("p"), now, false, "", now, now, now, 0, int64(1)))

	got, err := s.Get(context.Background(), scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"})
	require.NoError(t, err)
	require.Equal(t, "t", got.TaskName)
	require.Equal(t, "1", got.InstanceID)
	require.Equal(t, int64(1), got.Version)
}

func TestGORMStore_Pick_LostRace(t *testing.T) {
	s, mock := newMockStore(t)
	id := scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"}
	now := time.Now()

	mock.ExpectExec("UPDATE `scheduled_tasks`").
		WillReturnResult(sqlmock.NewResult(0, 0))

	result, err := s.Pick(context.Background(), id, 1, now, "owner")
	require.NoError(t, err)
	require.Equal(t, 0, result.RowsAffected)
}

func TestGORMStore_Pick_Wins(t *testing.T) {
	s, mock := newMockStore(t)
	id := scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"}
	now := time.Now()
	cols := []string{"task_name", "task_instance", "task_data", "execution_time", "picked", "picked_by", "last_heartbeat", "last_success", "last_failure", "consecutive_failures", "version"}

	mock.ExpectExec("UPDATE `scheduled_tasks`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `scheduled_tasks`").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("t", "1", []byte(nil), now, true, "owner", now, time.Time{}, time.Time{}, 0, int64(2)))

	result, err := s.Pick(context.Background(), id, 1, now, "owner")
	require.NoError(t, err)
	require.Equal(t, 1, result.RowsAffected)
	require.True(t, result.Execution.Picked)
	require.Equal(t, "owner", result.Execution.PickedBy)
}

func TestGORMStore_Reschedule_StalePick(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE `scheduled_tasks`").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Reschedule(context.Background(), scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"}, 1, time.Now(), nil, true, time.Now())
	require.ErrorIs(t, err, scheduler.ErrStalePick)
}

func TestGORMStore_Reschedule_Success_ResetsFailureStreak(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE `scheduled_tasks`").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Reschedule(context.Background(), scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"}, 1, time.Now(), nil, true, time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGORMStore_RescheduleExecutionTime_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE `scheduled_tasks`").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.RescheduleExecutionTime(context.Background(), scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"}, time.Now())
	require.ErrorIs(t, err, scheduler.ErrExecutionNotFound)
}

func TestGORMStore_UpdatePayload_StalePick(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE `scheduled_tasks`").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdatePayload(context.Background(), scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"}, 1, []byte("x"))
	require.ErrorIs(t, err, scheduler.ErrStalePick)
}

func TestGORMStore_Remove_StalePick(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM `scheduled_tasks`").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Remove(context.Background(), scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"}, 1)
	require.ErrorIs(t, err, scheduler.ErrStalePick)
}

func TestGORMStore_Remove_Success(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM `scheduled_tasks`").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Remove(context.Background(), scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"}, 1)
	require.NoError(t, err)
}

func TestGORMStore_Cancel(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM `scheduled_tasks`").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Cancel(context.Background(), scheduler.TaskInstanceID{TaskName: "t", InstanceID: "1"})
	require.NoError(t, err)
}

func TestGORMStore_GetExecutionsFailingLongerThan(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"task_name", "task_instance", "task_data", "execution_time", "picked", "picked_by", "last_heartbeat", "last_success", "last_failure", "consecutive_failures", "version"}
	mock.ExpectQuery("SELECT \\* FROM `scheduled_tasks`").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("t", "1", []byte(nil), time.Now(), false, "", time.Time{}, time.Time{}, time.Now(), 2, int64(3)))

	failing, err := s.GetExecutionsFailingLongerThan(context.Background(), time.Now(), time.Hour)
	require.NoError(t, err)
	require.Len(t, failing, 1)
}

func TestGORMStore_GetExecutionsForTask(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"task_name", "task_instance", "task_data", "execution_time", "picked", "picked_by", "last_heartbeat", "last_success", "last_failure", "consecutive_failures", "version"}
	mock.ExpectQuery("SELECT \\* FROM `scheduled_tasks`").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t", "1", []byte(nil), time.Now(), false, "", time.Time{}, time.Time{}, time.Time{}, 0, int64(1)).
			AddRow("t", "2", []byte(nil), time.Now(), false, "", time.Time{}, time.Time{}, time.Time{}, 0, int64(1)))

	got, err := s.GetExecutionsForTask(context.Background(), "t")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestGORMStore_GetDeadExecutions(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"task_name", "task_instance", "task_data", "execution_time", "picked", "picked_by", "last_heartbeat", "last_success", "last_failure", "consecutive_failures", "version"}
	mock.ExpectQuery("SELECT \\* FROM `scheduled_tasks`").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("t", "1", []byte(nil), time.Now(), true, "owner", time.Now(), time.Time{}, time.Time{}, 0, int64(3)))

	dead, err := s.GetDeadExecutions(context.Background(), time.Now(), time.Minute)
	require.NoError(t, err)
	require.Len(t, dead, 1)
}

func TestGORMStore_SupportsSelectForUpdateSkipLocked_OptimisticUntilProvenOtherwise(t *testing.T) {
	mysqlStore := New(nil, DialectMySQL)
	require.True(t, mysqlStore.SupportsSelectForUpdateSkipLocked())

	pgStore := New(nil, DialectPostgres)
	require.True(t, pgStore.SupportsSelectForUpdateSkipLocked())
}

func TestGORMStore_PickDue_FallsBackPermanentlyOnUnsupportedSyntax(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"task_name", "task_instance", "task_data", "execution_time", "picked", "picked_by", "last_heartbeat", "last_success", "last_failure", "consecutive_failures", "version"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `scheduled_tasks`").
		WillReturnError(&mysqldriver.MySQLError{Number: mysqlSyntaxErrorNumber, Message: "syntax error near SKIP LOCKED"})
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT \\* FROM `scheduled_tasks`").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("t", "1", []byte(nil), now, false, "", time.Time{}, time.Time{}, time.Time{}, 0, int64(1)))
	mock.ExpectExec("UPDATE `scheduled_tasks`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `scheduled_tasks`").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("t", "1", []byte(nil), now, true, "owner", now, time.Time{}, time.Time{}, 0, int64(2)))

	picked, err := s.PickDue(context.Background(), now, 10, "owner")
	require.NoError(t, err)
	require.Len(t, picked, 1)
	require.False(t, s.SupportsSelectForUpdateSkipLocked())
}
