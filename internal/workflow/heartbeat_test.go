package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"pixguard/internal/catalog"
	"pixguard/internal/logging"
	"pixguard/internal/testsupport"
	"pixguard/internal/workflow"
)

func staleProcessingRun(t *testing.T, store *catalog.Store, age time.Duration) *catalog.Run {
	t.Helper()
	run := testsupport.NewRun(t, store, "alice", "photo.png", testsupport.StagePNG(t, "photo.png"))
	stale := time.Now().UTC().Add(-age)
	run.Status = catalog.StatusFingerprinting
	run.LastHeartbeat = &stale
	if err := store.UpdateRun(context.Background(), run); err != nil {
		t.Fatalf("UpdateRun failed: %v", err)
	}
	return run
}

func TestHeartbeatMonitorReclaimsStaleRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := staleProcessingRun(t, store, 10*time.Minute)

	monitor := workflow.NewHeartbeatMonitor(store, logging.NewNop(), time.Second, time.Minute)
	statuses := []catalog.Status{catalog.StatusFingerprinting}
	if err := monitor.ReclaimStaleRuns(context.Background(), logging.NewNop(), statuses); err != nil {
		t.Fatalf("ReclaimStaleRuns failed: %v", err)
	}

	reclaimed, err := store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if reclaimed.Status != catalog.StatusPending {
		t.Fatalf("expected run back at pending, got %s", reclaimed.Status)
	}
	if reclaimed.LastHeartbeat != nil {
		t.Fatal("expected heartbeat to be cleared on reclaim")
	}
}

func TestHeartbeatMonitorSkipsWhenTimeoutDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := staleProcessingRun(t, store, 10*time.Minute)

	monitor := workflow.NewHeartbeatMonitor(store, logging.NewNop(), time.Second, 0)
	statuses := []catalog.Status{catalog.StatusFingerprinting}
	if err := monitor.ReclaimStaleRuns(context.Background(), logging.NewNop(), statuses); err != nil {
		t.Fatalf("ReclaimStaleRuns failed: %v", err)
	}

	untouched, err := store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if untouched.Status != catalog.StatusFingerprinting {
		t.Fatalf("expected run untouched with timeout disabled, got %s", untouched.Status)
	}
}

func TestHeartbeatMonitorIgnoresFreshRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := staleProcessingRun(t, store, time.Second)

	monitor := workflow.NewHeartbeatMonitor(store, logging.NewNop(), time.Second, time.Minute)
	statuses := []catalog.Status{catalog.StatusFingerprinting}
	if err := monitor.ReclaimStaleRuns(context.Background(), logging.NewNop(), statuses); err != nil {
		t.Fatalf("ReclaimStaleRuns failed: %v", err)
	}

	untouched, err := store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if untouched.Status != catalog.StatusFingerprinting {
		t.Fatalf("expected fresh run untouched, got %s", untouched.Status)
	}
}

func TestHeartbeatLoopKeepsRunAlive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	run := testsupport.NewRun(t, store, "alice", "photo.png", testsupport.StagePNG(t, "photo.png"))
	run.Status = catalog.StatusFingerprinting
	if err := store.UpdateRun(context.Background(), run); err != nil {
		t.Fatalf("UpdateRun failed: %v", err)
	}

	monitor := workflow.NewHeartbeatMonitor(store, logging.NewNop(), 10*time.Millisecond, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go monitor.StartLoop(ctx, &wg, run.ID)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			cancel()
			wg.Wait()
			t.Fatal("timed out waiting for heartbeat update")
		default:
		}
		updated, err := store.GetRun(context.Background(), run.ID)
		if err != nil {
			cancel()
			wg.Wait()
			t.Fatalf("GetRun failed: %v", err)
		}
		if updated.LastHeartbeat != nil {
			cancel()
			wg.Wait()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
