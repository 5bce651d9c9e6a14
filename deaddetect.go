package scheduler

import (
	"context"
	"time"
)

// deadExecutionDetector periodically finds picked rows whose heartbeat has
// gone stale — their owning process crashed, was killed, or lost contact
// with the store — and hands them to the owning task's OnDead handler so
// the row is reclaimed instead of staying picked forever. A row is
// considered dead once its heartbeat is older than four heartbeat
// intervals, the same multiplier the upstream library uses.
type deadExecutionDetector struct {
	store     Store
	tasks     *taskRegistry
	clock     Clock
	interval  time.Duration
	deadAfter time.Duration
	stats     StatsSink
	logger    Logger

	stopped chan struct{}
}

func newDeadExecutionDetector(cfg Config, store Store, tasks *taskRegistry) *deadExecutionDetector {
	return &deadExecutionDetector{
		store:     store,
		tasks:     tasks,
		clock:     cfg.Clock,
		interval:  cfg.DeadExecutionDetectionInterval,
		deadAfter: cfg.deadAfter(),
		stats:     cfg.StatsSink,
		logger:    cfg.Logger,
		stopped:   make(chan struct{}),
	}
}

func (d *deadExecutionDetector) start(ctx context.Context) {
	go func() {
		defer close(d.stopped)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.tick(ctx)
			}
		}
	}()
}

func (d *deadExecutionDetector) tick(ctx context.Context) {
	now := d.clock.Now()
	dead, err := d.store.GetDeadExecutions(ctx, now, d.deadAfter)
	if err != nil {
		d.logger.Errorw("dead execution scan failed", "error", err)
		d.stats.Report(Event{Kind: EventUnexpectedError})
		return
	}

	for _, execution := range dead {
		d.reclaim(ctx, execution)
	}
}

func (d *deadExecutionDetector) reclaim(ctx context.Context, execution Execution) {
	id := execution.TaskInstanceID
	task, ok := d.tasks.get(id.TaskName)
	if !ok {
		d.logger.Errorw("dead execution references unknown task, leaving intact", "task", id.TaskName, "instance", id.InstanceID)
		return
	}

	d.logger.Warnw("reclaiming dead execution", "task", id.TaskName, "instance", id.InstanceID, "lastHeartbeat", execution.LastHeartbeat)
	d.stats.Report(Event{Kind: EventDead, TaskName: id.TaskName, InstanceID: id.InstanceID})

	handler := task.OnDead
	if handler == nil {
		handler = task.OnFailure
	}

	execCtx := ExecutionContext{Execution: execution, Task: task}
	ops := storeOps{ctx: ctx, store: d.store, id: id, task: task, clock: d.clock, version: execution.Version, success: false}
	if err := handler(execCtx, ops); err != nil {
		d.logger.Errorw("dead execution handler error", "task", id.TaskName, "instance", id.InstanceID, "error", err)
	}
}

func (d *deadExecutionDetector) awaitStopped() {
	<-d.stopped
}
