package scheduler

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory Store used across this package's tests. It
// implements the same optimistic-locking contract as a real Store: every
// mutation checks Version (or Picked/ExecutionTime) before applying, the
// way a real conditional UPDATE would.
type fakeStore struct {
	mu             sync.Mutex
	rows           map[TaskInstanceID]Execution
	supportsSFUSL  bool
	pickDueErr     error
	getDueErr      error
	insertErr      error
	failNextPickOf TaskInstanceID
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[TaskInstanceID]Execution)}
}

func (s *fakeStore) Insert(ctx context.Context, id TaskInstanceID, executionTime time.Time, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, exists := s.rows[id]; exists {
		return ErrAlreadyScheduled
	}
	s.rows[id] = Execution{
		TaskInstanceID: id,
		Payload:        payload,
		ExecutionTime:  executionTime,
		Version:        1,
	}
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id TaskInstanceID) (Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok {
		return Execution{}, ErrExecutionNotFound
	}
	return e, nil
}

func (s *fakeStore) GetDue(ctx context.Context, now time.Time, limit int) ([]Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getDueErr != nil {
		return nil, s.getDueErr
	}
	var out []Execution
	for _, e := range s.rows {
		if !e.Picked && !e.ExecutionTime.After(now) {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) Pick(ctx context.Context, id TaskInstanceID, expectedVersion int64, now time.Time, pickedBy string) (PickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok {
		return PickResult{}, nil
	}
	if s.failNextPickOf == id {
		s.failNextPickOf = TaskInstanceID{}
		return PickResult{}, nil
	}
	if e.Picked || e.Version != expectedVersion || e.ExecutionTime.After(now) {
		return PickResult{}, nil
	}
	e.Picked = true
	e.PickedBy = pickedBy
	e.LastHeartbeat = now
	e.Version++
	s.rows[id] = e
	return PickResult{Execution: e, RowsAffected: 1}, nil
}

func (s *fakeStore) PickDue(ctx context.Context, now time.Time, limit int, pickedBy string) ([]Execution, error) {
	s.mu.Lock()
	if s.pickDueErr != nil {
		defer s.mu.Unlock()
		return nil, s.pickDueErr
	}
	var candidates []TaskInstanceID
	for id, e := range s.rows {
		if !e.Picked && !e.ExecutionTime.After(now) {
			candidates = append(candidates, id)
			if len(candidates) == limit {
				break
			}
		}
	}
	s.mu.Unlock()

	var picked []Execution
	for _, id := range candidates {
		s.mu.Lock()
		e := s.rows[id]
		s.mu.Unlock()
		result, _ := s.Pick(ctx, id, e.Version, now, pickedBy)
		if result.RowsAffected == 1 {
			picked = append(picked, result.Execution)
		}
	}
	return picked, nil
}

func (s *fakeStore) UpdateHeartbeat(ctx context.Context, id TaskInstanceID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok || !e.Picked {
		return nil
	}
	e.LastHeartbeat = now
	s.rows[id] = e
	return nil
}

func (s *fakeStore) Reschedule(ctx context.Context, id TaskInstanceID, expectedVersion int64, executionTime time.Time, newPayload []byte, success bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok || e.Version != expectedVersion {
		return ErrStalePick
	}
	e.Payload = newPayload
	e.ExecutionTime = executionTime
	e.Picked = false
	e.PickedBy = ""
	e.Version++
	if success {
		e.LastSuccess = at
		e.ConsecutiveFailures = 0
	} else {
		e.LastFailure = at
		e.ConsecutiveFailures++
	}
	s.rows[id] = e
	return nil
}

func (s *fakeStore) RescheduleExecutionTime(ctx context.Context, id TaskInstanceID, executionTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok {
		return ErrExecutionNotFound
	}
	e.ExecutionTime = executionTime
	e.Version++
	s.rows[id] = e
	return nil
}

func (s *fakeStore) UpdatePayload(ctx context.Context, id TaskInstanceID, expectedVersion int64, newPayload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok || e.Version != expectedVersion {
		return ErrStalePick
	}
	e.Payload = newPayload
	e.Version++
	s.rows[id] = e
	return nil
}

func (s *fakeStore) Remove(ctx context.Context, id TaskInstanceID, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok || e.Version != expectedVersion {
		return ErrStalePick
	}
	delete(s.rows, id)
	return nil
}

func (s *fakeStore) Cancel(ctx context.Context, id TaskInstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *fakeStore) GetDeadExecutions(ctx context.Context, now time.Time, deadAfter time.Duration) ([]Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Execution
	for _, e := range s.rows {
		if e.IsDeadSince(now, deadAfter) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) GetExecutionsFailingLongerThan(ctx context.Context, now time.Time, duration time.Duration) ([]Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := now.Add(-duration)
	var out []Execution
	for _, e := range s.rows {
		if !e.Picked && !e.LastSuccess.After(deadline) && e.ConsecutiveFailures > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) GetExecutionsForTask(ctx context.Context, taskName string) ([]Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Execution
	for id, e := range s.rows {
		if id.TaskName == taskName {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) SupportsSelectForUpdateSkipLocked() bool {
	return s.supportsSFUSL
}

func (s *fakeStore) get(id TaskInstanceID) (Execution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	return e, ok
}

var _ Store = (*fakeStore)(nil)
