// Package store implements scheduler.Store over GORM, supporting both MySQL
// and PostgreSQL, the way the rest of this codebase's dao package wraps
// *gorm.DB behind a narrow interface: every mutation is a conditional
// Model(...).Where(...).Updates(...) call whose RowsAffected tells the
// caller whether it won the race it was trying to win.
package store

import (
	"time"

	scheduler "github.com/gocronforge/dbscheduler"
)

// row is the scheduled_tasks table's GORM model. Column names match the
// persistent schema exactly; application code never sees this type, only
// scheduler.Execution.
type row struct {
	TaskName   string `gorm:"column:task_name;primaryKey"`
	InstanceID string `gorm:"column:task_instance;primaryKey"`

	TaskData      []byte    `gorm:"column:task_data"`
	ExecutionTime time.Time `gorm:"column:execution_time"`

	Picked        bool      `gorm:"column:picked"`
	PickedBy      string    `gorm:"column:picked_by"`
	LastHeartbeat time.Time `gorm:"column:last_heartbeat"`

	LastSuccess         time.Time `gorm:"column:last_success"`
	LastFailure         time.Time `gorm:"column:last_failure"`
	ConsecutiveFailures int       `gorm:"column:consecutive_failures"`

	Version int64 `gorm:"column:version"`
}

func (row) TableName() string { return "scheduled_tasks" }

func (r row) toExecution() scheduler.Execution {
	return scheduler.Execution{
		TaskInstanceID: scheduler.TaskInstanceID{TaskName: r.TaskName, InstanceID: r.InstanceID},
		Payload:        r.TaskData,
		ExecutionTime:  r.ExecutionTime,
		Picked:         r.Picked,
		PickedBy:       r.PickedBy,
		LastHeartbeat:  r.LastHeartbeat,
		LastSuccess:    r.LastSuccess,
		LastFailure:    r.LastFailure,

		ConsecutiveFailures: r.ConsecutiveFailures,
		Version:             r.Version,
	}
}
