package api

import (
	"context"
	"testing"
)

type runActionStub struct {
	runs    map[int64]*Run
	retried []int64
	removed []int64
}

func (s *runActionStub) Describe(_ context.Context, id int64) (*Run, error) {
	if run, ok := s.runs[id]; ok {
		return run, nil
	}
	return nil, nil
}

func (s *runActionStub) Retry(_ context.Context, ids []int64) (int64, error) {
	s.retried = append(s.retried, ids...)
	return int64(len(ids)), nil
}

func (s *runActionStub) Remove(_ context.Context, id int64) (bool, error) {
	s.removed = append(s.removed, id)
	return true, nil
}

func TestRetryFailedRunsByIDOutcomes(t *testing.T) {
	stub := &runActionStub{runs: map[int64]*Run{
		1: {ID: 1, Status: "failed"},
		2: {ID: 2, Status: "pending"},
	}}

	result, err := RetryFailedRunsByID(context.Background(), stub, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("RetryFailedRunsByID: %v", err)
	}
	if result.UpdatedCount != 1 {
		t.Fatalf("updated count = %d, want 1", result.UpdatedCount)
	}
	want := []RetryRunOutcome{RetryRunUpdated, RetryRunNotFailed, RetryRunNotFound}
	for i, outcome := range want {
		if result.Runs[i].Outcome != outcome {
			t.Fatalf("run %d outcome = %s, want %s", result.Runs[i].ID, result.Runs[i].Outcome, outcome)
		}
	}
	if len(stub.retried) != 1 || stub.retried[0] != 1 {
		t.Fatalf("retried ids = %v, want [1]", stub.retried)
	}
}

func TestRemoveRunsByIDSkipsProcessing(t *testing.T) {
	stub := &runActionStub{runs: map[int64]*Run{
		1: {ID: 1, Status: "completed"},
		2: {ID: 2, Status: "fingerprinting"},
	}}

	result, err := RemoveRunsByID(context.Background(), stub, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("RemoveRunsByID: %v", err)
	}
	if result.RemovedCount != 1 {
		t.Fatalf("removed count = %d, want 1", result.RemovedCount)
	}
	want := []RemoveRunOutcome{RemoveRunRemoved, RemoveRunProcessing, RemoveRunNotFound}
	for i, outcome := range want {
		if result.Runs[i].Outcome != outcome {
			t.Fatalf("run %d outcome = %s, want %s", result.Runs[i].ID, result.Runs[i].Outcome, outcome)
		}
	}
	if len(stub.removed) != 1 || stub.removed[0] != 1 {
		t.Fatalf("removed ids = %v, want [1]", stub.removed)
	}
}
