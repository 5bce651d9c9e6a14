package scheduler

import "time"

// TaskInstanceID identifies a task instance by the pair that is globally
// unique at rest: the owning task's name and the instance id within that
// task. This pair never changes for the lifetime of a scheduled row.
type TaskInstanceID struct {
	TaskName   string
	InstanceID string
}

// TaskInstance is a concrete scheduled invocation: a task name, an instance
// id, and an opaque payload that only the owning task interprets.
type TaskInstance struct {
	TaskInstanceID
	Payload any
}

// NewTaskInstance builds a TaskInstance for taskName/instanceID carrying
// payload. instanceID must be unique among instances of the same task.
func NewTaskInstance(taskName, instanceID string, payload any) TaskInstance {
	return TaskInstance{
		TaskInstanceID: TaskInstanceID{TaskName: taskName, InstanceID: instanceID},
		Payload:        payload,
	}
}

// Execution is the persisted row for a task instance plus its runtime
// ownership state. Field meanings and invariants match the scheduled_tasks
// table: at most one row per (TaskName, InstanceID); Picked implies
// PickedBy and LastHeartbeat are set; Version increments on every mutation
// and every conditional update predicates on the observed Version.
type Execution struct {
	TaskInstanceID

	Payload       []byte
	ExecutionTime time.Time

	Picked        bool
	PickedBy      string
	LastHeartbeat time.Time

	LastSuccess         time.Time
	LastFailure         time.Time
	ConsecutiveFailures int

	Version int64
}

// IsDeadSince reports whether a picked execution's heartbeat is older than
// deadAfter, measured from now.
func (e Execution) IsDeadSince(now time.Time, deadAfter time.Duration) bool {
	if !e.Picked {
		return false
	}
	return now.Sub(e.LastHeartbeat) >= deadAfter
}
