package scheduler

import (
	"context"
	"time"
)

// ClientEventKind classifies a notification emitted by SchedulerClient
// mutations, distinct from StatsSink's execution-lifecycle events.
type ClientEventKind int

const (
	ClientEventScheduled ClientEventKind = iota
	ClientEventRescheduled
	ClientEventRemoved
)

// ClientEvent is delivered synchronously to every registered Listener from
// within the call that produced it, before the call returns.
type ClientEvent struct {
	Kind ClientEventKind
	TaskInstanceID
	ExecutionTime time.Time
}

// Listener observes SchedulerClient mutations. Implementations must return
// quickly; they run on the caller's goroutine.
type Listener interface {
	OnClientEvent(ClientEvent)
}

// ListenerFunc adapts a plain function to a Listener.
type ListenerFunc func(ClientEvent)

func (f ListenerFunc) OnClientEvent(e ClientEvent) { f(e) }

// SchedulerClient is the collaborator-facing half of the scheduler: the API
// an application uses to schedule, reschedule, and cancel task instances
// without needing a running Scheduler in the same process. A client backed
// by the same Store as a running Scheduler in another process is how a new
// execution becomes visible to the cluster.
type SchedulerClient interface {
	// Schedule creates instance to run at executionTime, serializing its
	// payload with the task's configured Serializer. Returns
	// ErrAlreadyScheduled if the instance already exists, or ErrUnknownTask
	// if instance.TaskName is not registered.
	Schedule(ctx context.Context, instance TaskInstance, executionTime time.Time) error

	// Reschedule moves id to run at executionTime. It is unconditional: a
	// concurrent second caller racing on the same id simply wins the last
	// write, rather than one of them losing a version check. Returns
	// ErrExecutionNotFound if no row exists for id.
	Reschedule(ctx context.Context, id TaskInstanceID, executionTime time.Time) error

	// Cancel removes the row for id, if any. It is not an error to cancel
	// an instance that does not exist or has already run and been removed.
	Cancel(ctx context.Context, id TaskInstanceID) error

	// GetScheduledExecution returns the current row for id.
	GetScheduledExecution(ctx context.Context, id TaskInstanceID) (Execution, error)

	// GetScheduledExecutionsForTask invokes sink once for every row
	// currently scheduled for taskName, across every instance id.
	GetScheduledExecutionsForTask(ctx context.Context, taskName string, sink func(Execution)) error

	// AddListener registers l to receive every subsequent ClientEvent.
	AddListener(l Listener)
}

// client is the default SchedulerClient, backed directly by a Store and a
// task registry for payload (de)serialization and name validation.
type client struct {
	store     Store
	tasks     *taskRegistry
	clock     Clock
	listeners []Listener
}

// NewClient builds a standalone SchedulerClient over store, for a process
// that schedules or cancels task instances without running a Scheduler
// itself. tasks must include every task whose instances this client will
// address, so it can resolve serializers and validate names the same way a
// running Scheduler would.
func NewClient(store Store, clock Clock, tasks ...Task) (SchedulerClient, error) {
	registry, err := newTaskRegistry(tasks...)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &client{store: store, tasks: registry, clock: clock}, nil
}

func (c *client) AddListener(l Listener) {
	c.listeners = append(c.listeners, l)
}

func (c *client) notify(e ClientEvent) {
	for _, l := range c.listeners {
		l.OnClientEvent(e)
	}
}

func (c *client) Schedule(ctx context.Context, instance TaskInstance, executionTime time.Time) error {
	task, ok := c.tasks.get(instance.TaskName)
	if !ok {
		return ErrUnknownTask
	}
	payload, err := task.serializerOrDefault().Serialize(instance.Payload)
	if err != nil {
		return err
	}
	if err := c.store.Insert(ctx, instance.TaskInstanceID, executionTime, payload); err != nil {
		return err
	}
	c.notify(ClientEvent{Kind: ClientEventScheduled, TaskInstanceID: instance.TaskInstanceID, ExecutionTime: executionTime})
	return nil
}

func (c *client) Reschedule(ctx context.Context, id TaskInstanceID, executionTime time.Time) error {
	if _, ok := c.tasks.get(id.TaskName); !ok {
		return ErrUnknownTask
	}
	if err := c.store.RescheduleExecutionTime(ctx, id, executionTime); err != nil {
		return err
	}
	c.notify(ClientEvent{Kind: ClientEventRescheduled, TaskInstanceID: id, ExecutionTime: executionTime})
	return nil
}

func (c *client) Cancel(ctx context.Context, id TaskInstanceID) error {
	if err := c.store.Cancel(ctx, id); err != nil {
		return err
	}
	c.notify(ClientEvent{Kind: ClientEventRemoved, TaskInstanceID: id})
	return nil
}

func (c *client) GetScheduledExecution(ctx context.Context, id TaskInstanceID) (Execution, error) {
	return c.store.Get(ctx, id)
}

func (c *client) GetScheduledExecutionsForTask(ctx context.Context, taskName string, sink func(Execution)) error {
	if _, ok := c.tasks.get(taskName); !ok {
		return ErrUnknownTask
	}
	executions, err := c.store.GetExecutionsForTask(ctx, taskName)
	if err != nil {
		return err
	}
	for _, e := range executions {
		sink(e)
	}
	return nil
}
