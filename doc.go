// Package scheduler implements a persistent, cluster-safe task scheduler:
// task instances are rows in a shared SQL table, and any number of
// Scheduler processes pointed at that table cooperate to run each due
// instance exactly once, with ownership decided by optimistic locking
// rather than by a separate coordination service.
//
// A Store implementation (see the store subpackages) backs the table; a
// Scheduler is constructed with one via New, registers Tasks that know how
// to run particular kinds of instances, and is started with Start. A
// SchedulerClient, available from any Scheduler via Client or constructed
// standalone with NewClient, schedules, reschedules, and cancels instances
// from any process sharing the same Store.
package scheduler
