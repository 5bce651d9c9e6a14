package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// schedulerState models the lifecycle every Scheduler moves through exactly
// once: Created, then Started, then ShuttingDown, then Stopped. There is no
// path back to an earlier state; a stopped Scheduler must be discarded and
// a new one constructed.
type schedulerState int32

const (
	stateCreated schedulerState = iota
	stateStarted
	stateShuttingDown
	stateStopped
)

// Scheduler polls a Store for due task instances and runs them, sharing
// ownership of that Store with any number of other Scheduler processes
// pointed at the same database: exactly one of them picks and runs any
// given execution, enforced by the Store's optimistic locking rather than
// by any coordination between the processes themselves.
type Scheduler struct {
	cfg   Config
	store Store
	tasks *taskRegistry

	dispatcher   *dispatcher
	poll         *pollLoop
	deadDetector *deadExecutionDetector
	heartbeat    *heartbeatUpdater
	client       *client

	state      atomic.Int32
	cancelRun  context.CancelFunc
	cancelExec context.CancelFunc
}

// New constructs a Scheduler over store with the given tasks registered.
// The Scheduler does not start polling until Start is called.
func New(cfg Config, store Store, tasks ...Task) (*Scheduler, error) {
	cfg = cfg.withDefaults()

	registry, err := newTaskRegistry(tasks...)
	if err != nil {
		return nil, err
	}

	d := newDispatcher(cfg, store, registry)
	c := &client{store: store, tasks: registry, clock: cfg.Clock}

	return &Scheduler{
		cfg:        cfg,
		store:      store,
		tasks:      registry,
		dispatcher: d,
		client:     c,
	}, nil
}

// Client returns the SchedulerClient this Scheduler uses internally. It can
// also be handed to other parts of the same process to schedule, reschedule,
// and cancel task instances.
func (s *Scheduler) Client() SchedulerClient {
	return s.client
}

// RegisterTask adds t to the task registry after construction. Executions
// for t that are already due are not retried until the next poll.
func (s *Scheduler) RegisterTask(t Task) {
	s.tasks.register(t)
}

// Start begins polling for due executions and returns immediately; the poll
// loop, dead-execution detector, and heartbeat updater all run on their own
// goroutines until Stop is called. Start is idempotent: a second call logs
// a warning and returns nil rather than starting a second set of loops.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(stateCreated), int32(stateStarted)) {
		s.cfg.Logger.Warnw("scheduler already started, ignoring", "name", s.cfg.SchedulerName)
		return nil
	}

	if err := s.insertStartTasks(ctx); err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	execCtx, cancelExec := context.WithCancel(context.Background())
	s.cancelRun = cancelRun
	s.cancelExec = cancelExec

	s.poll = newPollLoop(s.cfg, s.store, s.dispatcher, execCtx)
	s.deadDetector = newDeadExecutionDetector(s.cfg, s.store, s.tasks)
	s.heartbeat = newHeartbeatUpdater(s.cfg, s.store, s.dispatcher)

	if s.cfg.EnableImmediateExecution {
		s.client.AddListener(ListenerFunc(func(e ClientEvent) {
			if e.Kind != ClientEventScheduled && e.Kind != ClientEventRescheduled {
				return
			}
			if !e.ExecutionTime.After(s.cfg.Clock.Now()) {
				s.poll.triggerCheckForDueExecutions()
			}
		}))
	}

	s.poll.start(runCtx)
	s.deadDetector.start(runCtx)
	s.heartbeat.start(runCtx)

	s.cfg.Logger.Infow("scheduler started", "name", s.cfg.SchedulerName, "capacity", s.cfg.ExecutorCapacity)
	return nil
}

// Stop signals every background loop to exit, waits for them to do so, then
// waits up to Config.ShutdownMaxWait for in-flight executions to finish
// before returning regardless. After Stop returns the Scheduler cannot be
// restarted.
func (s *Scheduler) Stop() {
	if !s.state.CompareAndSwap(int32(stateStarted), int32(stateShuttingDown)) {
		s.cfg.Logger.Warnw("scheduler not running, ignoring Stop", "name", s.cfg.SchedulerName)
		return
	}

	s.cfg.Logger.Infow("scheduler shutting down", "name", s.cfg.SchedulerName)

	s.cancelRun()
	s.poll.awaitStopped()
	s.deadDetector.awaitStopped()
	s.heartbeat.awaitStopped()

	s.dispatcher.awaitShutdown(s.cfg.ShutdownMaxWait)
	s.cancelExec()

	s.state.Store(int32(stateStopped))
	s.cfg.Logger.Infow("scheduler stopped", "name", s.cfg.SchedulerName)
}

// TriggerCheckForDueExecutions wakes the due-poll loop immediately instead
// of waiting for the next polling interval. It is a no-op before Start.
func (s *Scheduler) TriggerCheckForDueExecutions() {
	if s.poll != nil {
		s.poll.triggerCheckForDueExecutions()
	}
}

// GetCurrentlyExecuting returns a snapshot of the executions this process is
// currently running.
func (s *Scheduler) GetCurrentlyExecuting() []Execution {
	return s.dispatcher.currentlyExecuting()
}

// GetFailingExecutions returns every execution that hasn't succeeded in
// over duration and has failed at least once, across the whole cluster, not
// just this process.
func (s *Scheduler) GetFailingExecutions(ctx context.Context, duration time.Duration) ([]Execution, error) {
	return s.store.GetExecutionsFailingLongerThan(ctx, s.cfg.Clock.Now(), duration)
}

// insertStartTasks auto-inserts a row under RecurringInstanceID for every
// Config.StartTasks entry that has a Schedule and has no row yet, so a
// recurring task begins firing without a separate client.Schedule call. A
// race against another scheduler process inserting the same row concurrently
// is resolved by ignoring ErrAlreadyScheduled.
func (s *Scheduler) insertStartTasks(ctx context.Context) error {
	now := s.cfg.Clock.Now()
	for _, t := range s.cfg.StartTasks {
		if t.Schedule == nil {
			continue
		}
		id := TaskInstanceID{TaskName: t.Name, InstanceID: RecurringInstanceID}
		if _, err := s.store.Get(ctx, id); err == nil {
			continue
		} else if !errors.Is(err, ErrExecutionNotFound) {
			return err
		}
		next := t.Schedule.NextExecutionTime(now)
		if err := s.store.Insert(ctx, id, next, nil); err != nil && !errors.Is(err, ErrAlreadyScheduled) {
			return err
		}
	}
	return nil
}
