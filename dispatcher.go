package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// dispatcher is the worker pool: it holds ExecutorCapacity permits and runs
// one goroutine per picked execution for as long as that execution is in
// progress. A permit is acquired before a goroutine is spawned and released
// only when that goroutine returns, so the permits in use are the running
// executions plus any the poll loop has reserved for rows it is still
// fetching — never a queue depth. This
// mirrors a bounded java.util.concurrent.Semaphore more closely than a
// buffered channel would: a channel bounds how many pending jobs can be
// queued, not how many are simultaneously executing.
type dispatcher struct {
	sem      *semaphore.Weighted
	capacity int64

	tasks  *taskRegistry
	store  Store
	clock  Clock
	stats  StatsSink
	logger Logger

	mu      sync.Mutex
	running map[TaskInstanceID]runningExecution

	wg sync.WaitGroup
}

type runningExecution struct {
	execution Execution
	cancel    context.CancelFunc
}

func newDispatcher(cfg Config, store Store, tasks *taskRegistry) *dispatcher {
	capacity := int64(cfg.ExecutorCapacity)
	return &dispatcher{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
		tasks:    tasks,
		store:    store,
		clock:    cfg.Clock,
		stats:    cfg.StatsSink,
		logger:   cfg.Logger,
		running:  make(map[TaskInstanceID]runningExecution),
	}
}

// tryDispatch acquires a permit and, if one is free, spawns a goroutine to
// run execution. It returns false without blocking if the pool is at
// capacity. Direct callers that pick an execution and dispatch it in one
// step use this; the due-poll loop instead calls tryAcquire and launch
// separately so the permit is held before the row is even picked, not after.
func (d *dispatcher) tryDispatch(parent context.Context, execution Execution) bool {
	if !d.tryAcquire() {
		return false
	}
	d.launch(parent, execution)
	return true
}

// tryAcquire claims one permit without blocking, returning false if the pool
// is already at capacity. The caller must either launch an execution with it
// or give it back with release.
func (d *dispatcher) tryAcquire() bool {
	return d.sem.TryAcquire(1)
}

// release returns n permits that were acquired via tryAcquire but never
// handed to launch, because the store had fewer due rows than the poll loop
// had permits for.
func (d *dispatcher) release(n int) {
	if n <= 0 {
		return
	}
	d.sem.Release(int64(n))
}

// launch spawns a goroutine to run execution, consuming a permit the caller
// already holds via tryAcquire. It never blocks and never fails: capacity is
// enforced entirely by the caller acquiring permits before calling this.
// The execution is tracked before the goroutine starts, so it is visible to
// runningCount and the heartbeat updater as soon as launch returns.
func (d *dispatcher) launch(parent context.Context, execution Execution) {
	ctx, cancel := context.WithCancel(parent)
	d.track(execution.TaskInstanceID, execution, cancel)
	d.wg.Add(1)
	go d.run(ctx, cancel, execution)
}

// runningCount reports how many executions are currently in flight, the Go
// equivalent of the upstream currentlyProcessing map's size and the value
// poll strategies compare against their lower/upper limits.
func (d *dispatcher) runningCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

// currentlyExecuting returns a snapshot of the executions in flight.
func (d *dispatcher) currentlyExecuting() []Execution {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Execution, 0, len(d.running))
	for _, r := range d.running {
		out = append(out, r.execution)
	}
	return out
}

func (d *dispatcher) track(id TaskInstanceID, execution Execution, cancel context.CancelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running[id] = runningExecution{execution: execution, cancel: cancel}
}

func (d *dispatcher) untrack(id TaskInstanceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, id)
}

func (d *dispatcher) run(ctx context.Context, cancel context.CancelFunc, execution Execution) {
	defer d.wg.Done()
	defer d.sem.Release(1)

	id := execution.TaskInstanceID
	defer cancel()
	defer d.untrack(id)

	task, ok := d.tasks.get(id.TaskName)
	if !ok {
		d.logger.Errorw("unknown task, leaving execution intact", "task", id.TaskName, "instance", id.InstanceID)
		return
	}

	instance := TaskInstance{TaskInstanceID: id}
	execCtx := ExecutionContext{Execution: execution, Task: task}

	err := d.invoke(ctx, task, instance, execCtx)

	ops := storeOps{ctx: ctx, store: d.store, id: id, task: task, clock: d.clock, version: execution.Version}
	if err != nil {
		d.logger.Warnw("execution failed", "task", id.TaskName, "instance", id.InstanceID, "error", err)
		d.stats.Report(Event{Kind: EventFailed, TaskName: id.TaskName, InstanceID: id.InstanceID})
		ops.success = false
		if handlerErr := task.OnFailure(execCtx, ops); handlerErr != nil {
			d.logger.Errorw("failure handler error", "task", id.TaskName, "instance", id.InstanceID, "error", handlerErr)
		}
		return
	}

	d.stats.Report(Event{Kind: EventCompleted, TaskName: id.TaskName, InstanceID: id.InstanceID})
	ops.success = true
	if handlerErr := task.OnComplete(execCtx, ops); handlerErr != nil {
		d.logger.Errorw("completion handler error", "task", id.TaskName, "instance", id.InstanceID, "error", handlerErr)
	}
}

// invoke runs the task's ExecutionHandler, converting a panic into an error
// so one misbehaving task can never take down the dispatcher goroutine.
func (d *dispatcher) invoke(ctx context.Context, task Task, instance TaskInstance, execCtx ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: task %q panicked: %v", task.Name, r)
		}
	}()
	return task.Execute(ctx, instance, execCtx)
}

// awaitShutdown blocks until every in-flight execution finishes or maxWait
// elapses, whichever comes first.
func (d *dispatcher) awaitShutdown(maxWait time.Duration) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(maxWait):
		d.logger.Warnw("shutdown wait exceeded, executions may still be running", "waited", maxWait.String())
	}
}

// storeOps is the ExecutionOperations implementation handed to completion
// and failure handlers. success controls whether Reschedule records the
// transition as a success (clearing the failure streak) or a failure
// (incrementing it).
type storeOps struct {
	ctx     context.Context
	store   Store
	id      TaskInstanceID
	task    Task
	clock   Clock
	version int64
	success bool
}

func (o storeOps) Stop() error {
	return o.store.Remove(o.ctx, o.id, o.version)
}

func (o storeOps) Reschedule(executionTime time.Time, newPayload any) error {
	// Handlers that keep the row's payload pass Execution.Payload, which is
	// already serialized; store it as is rather than encoding it again.
	data, isRaw := newPayload.([]byte)
	if !isRaw {
		var err error
		data, err = o.task.serializerOrDefault().Serialize(newPayload)
		if err != nil {
			return err
		}
	}
	clock := o.clock
	if clock == nil {
		clock = SystemClock{}
	}
	return o.store.Reschedule(o.ctx, o.id, o.version, executionTime, data, o.success, clock.Now())
}

func (o storeOps) UpdatePayload(newPayload any) error {
	data, err := o.task.serializerOrDefault().Serialize(newPayload)
	if err != nil {
		return err
	}
	return o.store.UpdatePayload(o.ctx, o.id, o.version, data)
}
