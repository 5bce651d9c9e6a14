package scheduler

import (
	"context"
	"sync/atomic"
	"time"
)

// pollStrategy fetches and picks up to limit due executions in one pass.
// The two implementations trade off isolation level for throughput: see
// fetchAndLockSeparately and selectForUpdateSkipLocked.
type pollStrategy interface {
	fetchDue(ctx context.Context, p *pollLoop, now time.Time, limit int) ([]Execution, error)
}

// fetchAndLockSeparately first reads candidate rows with a plain SELECT,
// then picks each one individually with its own conditional UPDATE. It
// works on every dialect Store supports, at the cost of a pick that can
// lose a race it already paid a read for; a lost race here is silently
// skipped, not an error, since another scheduler instance winning it is
// the system working as intended.
type fetchAndLockSeparately struct{}

func (fetchAndLockSeparately) fetchDue(ctx context.Context, p *pollLoop, now time.Time, limit int) ([]Execution, error) {
	candidates, err := p.store.GetDue(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	picked := make([]Execution, 0, len(candidates))
	for _, c := range candidates {
		result, err := p.store.Pick(ctx, c.TaskInstanceID, c.Version, now, p.schedulerName)
		if err != nil {
			p.logger.Warnw("pick failed", "task", c.TaskName, "instance", c.InstanceID, "error", err)
			continue
		}
		if result.RowsAffected == 0 {
			continue
		}
		picked = append(picked, result.Execution)
	}
	return picked, nil
}

// selectForUpdateSkipLocked fetches and picks in a single statement on
// dialects that support SELECT ... FOR UPDATE SKIP LOCKED, so a batch of
// due rows is claimed atomically and concurrently polling schedulers never
// contend on the same row at all, rather than contending and losing.
type selectForUpdateSkipLocked struct{}

func (selectForUpdateSkipLocked) fetchDue(ctx context.Context, p *pollLoop, now time.Time, limit int) ([]Execution, error) {
	return p.store.PickDue(ctx, now, limit, p.schedulerName)
}

// pollLoop is the due-poll loop: on every wake of its Waiter, it reserves as
// many dispatcher permits as it can (up to PollingLimit), then asks its
// pollStrategy for at most that many due executions and dispatches each one
// against an already-held permit. Reserving permits before the pick, rather
// than picking a batch and hoping permits are still free afterward, is what
// keeps a leaked permit from ever happening: a row is never picked without
// capacity already set aside for it. If the last pass came back full (suggesting
// more due rows remain in the database) and the dispatcher has dropped to
// or below its lower limit of concurrently running executions, it wakes
// itself again immediately instead of waiting out the rest of the polling
// interval — otherwise a database with far more due work than
// ExecutorCapacity would only ever make one interval's worth of progress
// per interval. This mirrors the upstream SelectForUpdatePollStrategy's
// moreExecutionsInDatabase / lowerLimit re-poll trigger; like that
// implementation, the predicate is a heuristic, not a precise backlog
// measurement, since currentlyProcessing can shrink for reasons unrelated
// to this poll's own batch.
type pollLoop struct {
	store         Store
	dispatcher    *dispatcher
	clock         Clock
	waiter        *Waiter
	strategy      pollStrategy
	schedulerName string

	pollingLimit int
	lowerLimit   int

	stats  StatsSink
	logger Logger

	moreExecutionsInDatabase atomic.Bool
	stopped                  chan struct{}

	// execCtx is the parent context for dispatched executions. It is
	// distinct from the ctx passed to start: start's ctx governs the poll
	// loop itself and is cancelled the instant Stop begins, while execCtx
	// stays live for the shutdown grace period so in-flight executions can
	// finish instead of being cut off the moment polling stops.
	execCtx context.Context
}

func newPollLoop(cfg Config, store Store, d *dispatcher, execCtx context.Context) *pollLoop {
	var strategy pollStrategy = fetchAndLockSeparately{}
	if store.SupportsSelectForUpdateSkipLocked() {
		strategy = selectForUpdateSkipLocked{}
	}
	lowerLimit := int(float64(cfg.ExecutorCapacity) * cfg.LowerLimitFraction)
	if lowerLimit < 1 {
		lowerLimit = 1
	}
	upperLimit := int(float64(cfg.ExecutorCapacity) * cfg.UpperLimitFraction)
	pollingLimit := cfg.PollingLimit
	if upperLimit > 0 && upperLimit < pollingLimit {
		pollingLimit = upperLimit
	}
	return &pollLoop{
		store:         store,
		dispatcher:    d,
		clock:         cfg.Clock,
		waiter:        NewWaiter(cfg.PollingInterval, cfg.Clock),
		strategy:      strategy,
		schedulerName: cfg.SchedulerName,
		pollingLimit:  pollingLimit,
		lowerLimit:    lowerLimit,
		stats:         cfg.StatsSink,
		logger:        cfg.Logger,
		stopped:       make(chan struct{}),
		execCtx:       execCtx,
	}
}

func (p *pollLoop) start(ctx context.Context) {
	go func() {
		defer close(p.stopped)
		for {
			if p.waiter.DoWait(ctx) {
				return
			}
			if ctx.Err() != nil {
				return
			}
			p.tick(ctx)
		}
	}()
}

// triggerCheckForDueExecutions wakes the loop immediately rather than
// waiting for the next polling interval to elapse.
func (p *pollLoop) triggerCheckForDueExecutions() {
	p.waiter.Wake()
}

// acquirePermits claims up to pollingLimit permits one at a time, stopping
// the instant one is refused rather than looping further: per spec, the
// iteration that would acquire more permits than the pool has free aborts
// early instead of ever observing a stale notion of free capacity. The
// returned count is exactly how many due rows the coming pick is allowed to
// claim — capacity is reserved before any row is even read, not after.
func (p *pollLoop) acquirePermits() int {
	n := 0
	for n < p.pollingLimit {
		if !p.dispatcher.tryAcquire() {
			break
		}
		n++
	}
	return n
}

func (p *pollLoop) tick(ctx context.Context) {
	permits := p.acquirePermits()
	if permits == 0 {
		p.stats.Report(Event{Kind: EventExecutorsBusy})
		return
	}

	now := p.clock.Now()
	executions, err := p.strategy.fetchDue(ctx, p, now, permits)
	if err != nil {
		p.dispatcher.release(permits)
		p.logger.Errorw("poll for due executions failed", "error", err)
		p.stats.Report(Event{Kind: EventUnexpectedError})
		return
	}
	p.moreExecutionsInDatabase.Store(len(executions) == permits)

	if unused := permits - len(executions); unused > 0 {
		p.dispatcher.release(unused)
	}

	for _, e := range executions {
		p.stats.Report(Event{Kind: EventExecutionDue, TaskName: e.TaskName, InstanceID: e.InstanceID})
		p.dispatcher.launch(p.execCtx, e)
	}

	if p.moreExecutionsInDatabase.Load() && p.dispatcher.runningCount() <= p.lowerLimit {
		p.waiter.Wake()
	}
}

func (p *pollLoop) awaitStopped() {
	<-p.stopped
}
