package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestHeartbeatUpdater_RefreshesRunningExecutions(t *testing.T) {
	store := newFakeStore()
	clock := newFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	task := noopCompleteTask("t")
	registry, _ := newTaskRegistry(task)

	cfg := testConfig(store)
	cfg.Clock = clock
	d := newDispatcher(cfg, store, registry)
	h := newHeartbeatUpdater(cfg, store, d)

	id := TaskInstanceID{TaskName: "t", InstanceID: "1"}
	scheduleExecution(t, store, id, clock.Now())
	result, _ := store.Pick(context.Background(), id, 1, clock.Now(), "owner")

	release := make(chan struct{})
	blocking := NewCustomTask("t", func(ctx context.Context, instance TaskInstance, execCtx ExecutionContext) error {
		<-release
		return nil
	}, CompleteRemove, FailStop)
	registry.register(blocking)
	d.tryDispatch(context.Background(), result.Execution)

	clock.Advance(time.Hour)
	h.tick(context.Background())

	got, ok := store.get(id)
	if !ok {
		t.Fatal("expected row to still exist while execution is running")
	}
	if !got.LastHeartbeat.Equal(clock.Now()) {
		t.Fatalf("got LastHeartbeat %v, want %v", got.LastHeartbeat, clock.Now())
	}

	close(release)
}
