package scheduler

import (
	"context"
	"time"
)

// heartbeatUpdater refreshes LastHeartbeat for every execution the local
// dispatcher currently has in flight. It runs as a single ticking loop over
// a snapshot of currentlyExecuting rather than one timer per execution, the
// same batching the upstream library's updateHeartbeatExecutor does —
// with potentially thousands of concurrent executions, one timer each would
// be a lot of needless goroutines and lock contention for the same
// information a single sweep already has.
type heartbeatUpdater struct {
	store      Store
	dispatcher *dispatcher
	clock      Clock
	interval   time.Duration
	logger     Logger
	stats      StatsSink

	stopped chan struct{}
}

func newHeartbeatUpdater(cfg Config, store Store, d *dispatcher) *heartbeatUpdater {
	return &heartbeatUpdater{
		store:      store,
		dispatcher: d,
		clock:      cfg.Clock,
		interval:   cfg.HeartbeatInterval,
		logger:     cfg.Logger,
		stats:      cfg.StatsSink,
		stopped:    make(chan struct{}),
	}
}

func (h *heartbeatUpdater) start(ctx context.Context) {
	go func() {
		defer close(h.stopped)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.tick(ctx)
			}
		}
	}()
}

func (h *heartbeatUpdater) tick(ctx context.Context) {
	now := h.clock.Now()
	for _, execution := range h.dispatcher.currentlyExecuting() {
		if err := h.store.UpdateHeartbeat(ctx, execution.TaskInstanceID, now); err != nil {
			h.logger.Warnw("heartbeat update failed", "task", execution.TaskName, "instance", execution.InstanceID, "error", err)
			h.stats.Report(Event{Kind: EventUnexpectedError, TaskName: execution.TaskName, InstanceID: execution.InstanceID})
		}
	}
}

func (h *heartbeatUpdater) awaitStopped() {
	<-h.stopped
}
