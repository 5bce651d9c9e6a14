package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestDeadExecutionDetector_ReclaimsStaleExecution(t *testing.T) {
	store := newFakeStore()
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	reclaimed := make(chan struct{})
	task := NewCustomTask("t", noopExecute, nil, func(execCtx ExecutionContext, ops ExecutionOperations) error {
		defer close(reclaimed)
		return ops.Stop()
	})
	registry, _ := newTaskRegistry(task)

	id := TaskInstanceID{TaskName: "t", InstanceID: "1"}
	scheduleExecution(t, store, id, clock.Now())
	result, err := store.Pick(context.Background(), id, 1, clock.Now(), "owner")
	if err != nil || result.RowsAffected != 1 {
		t.Fatalf("pick failed: result=%+v err=%v", result, err)
	}

	cfg := testConfig(store)
	cfg.Clock = clock
	cfg.HeartbeatInterval = time.Minute
	d := newDeadExecutionDetector(cfg, store, registry)

	clock.Advance(5 * time.Minute) // past 4x heartbeat interval

	d.tick(context.Background())

	select {
	case <-reclaimed:
	case <-time.After(time.Second):
		t.Fatal("OnDead handler never ran")
	}

	if _, ok := store.get(id); ok {
		t.Fatal("expected row to be removed by OnDead handler")
	}
}

func TestDeadExecutionDetector_IgnoresFreshHeartbeats(t *testing.T) {
	store := newFakeStore()
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	called := false
	task := NewCustomTask("t", noopExecute, nil, func(execCtx ExecutionContext, ops ExecutionOperations) error {
		called = true
		return ops.Stop()
	})
	registry, _ := newTaskRegistry(task)

	id := TaskInstanceID{TaskName: "t", InstanceID: "1"}
	scheduleExecution(t, store, id, clock.Now())
	store.Pick(context.Background(), id, 1, clock.Now(), "owner")

	cfg := testConfig(store)
	cfg.Clock = clock
	cfg.HeartbeatInterval = time.Hour
	d := newDeadExecutionDetector(cfg, store, registry)

	clock.Advance(time.Minute)
	d.tick(context.Background())

	if called {
		t.Fatal("OnDead handler should not run for a fresh heartbeat")
	}
}

func TestDeadExecutionDetector_RecurringTask_ReschedulesToNowNotNextOccurrence(t *testing.T) {
	store := newFakeStore()
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	task := NewRecurringTask("hourly-report", NewFixedDelaySchedule(time.Hour),
		func(ctx context.Context, instance TaskInstanceID) error { return nil })
	registry, _ := newTaskRegistry(task)

	id := TaskInstanceID{TaskName: "hourly-report", InstanceID: RecurringInstanceID}
	scheduleExecution(t, store, id, clock.Now())
	result, err := store.Pick(context.Background(), id, 1, clock.Now(), "owner-that-died")
	if err != nil || result.RowsAffected != 1 {
		t.Fatalf("pick failed: result=%+v err=%v", result, err)
	}

	cfg := testConfig(store)
	cfg.Clock = clock
	cfg.HeartbeatInterval = time.Minute
	d := newDeadExecutionDetector(cfg, store, registry)

	// Owner dies partway into the hour; another scheduler's detector tick
	// should pick this up well before a full hour (the schedule's interval)
	// has elapsed.
	clock.Advance(5 * time.Minute)
	d.tick(context.Background())

	got, ok := store.get(id)
	if !ok {
		t.Fatal("expected recurring task's row to survive dead-execution reclaim")
	}
	if got.Picked {
		t.Fatal("expected row to be unpicked after reclaim")
	}
	if !got.ExecutionTime.Equal(clock.Now()) {
		t.Fatalf("got ExecutionTime %v, want now (%v): a dead recurring task must run on the next poll, not wait out its schedule interval", got.ExecutionTime, clock.Now())
	}
}

func TestDeadExecutionDetector_UnknownTask_LeavesRowIntact(t *testing.T) {
	store := newFakeStore()
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	registry, _ := newTaskRegistry() // no tasks registered

	id := TaskInstanceID{TaskName: "unregistered", InstanceID: "1"}
	scheduleExecution(t, store, id, clock.Now())
	result, err := store.Pick(context.Background(), id, 1, clock.Now(), "owner")
	if err != nil || result.RowsAffected != 1 {
		t.Fatalf("pick failed: result=%+v err=%v", result, err)
	}

	cfg := testConfig(store)
	cfg.Clock = clock
	cfg.HeartbeatInterval = time.Minute
	d := newDeadExecutionDetector(cfg, store, registry)

	clock.Advance(5 * time.Minute)
	d.tick(context.Background())

	got, ok := store.get(id)
	if !ok {
		t.Fatal("expected row for unknown task to remain intact, but it was removed")
	}
	if !got.Picked {
		t.Fatal("expected row to remain picked since it was left untouched")
	}
}
