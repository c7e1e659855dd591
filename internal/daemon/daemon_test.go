package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pixguard/internal/api"
	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/daemon"
	"pixguard/internal/logging"
	"pixguard/internal/stage"
	"pixguard/internal/testsupport"
	"pixguard/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *catalog.Run) error { return nil }
func (noopStage) Execute(context.Context, *catalog.Run) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func newTestDaemon(t *testing.T) (*daemon.Daemon, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Daemon.APIBind = ""
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{
		Fingerprinter: noopStage{},
		Fetcher:       noopStage{},
		Scorer:        noopStage{},
		Persister:     noopStage{},
		Notifier:      noopStage{},
	})
	d, err := daemon.New(cfg, store, logger, mgr, api.ScanDependencies{})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, cfg
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.CatalogPath == "" || status.LockFilePath == "" {
		t.Fatalf("status paths missing: %+v", status)
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected startup preflight checks in status")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonScanFileQueuesRun(t *testing.T) {
	d, cfg := newTestDaemon(t)
	ctx := context.Background()

	source := filepath.Join(t.TempDir(), "sunset.png")
	testsupport.WriteTestPNG(t, source, 7)

	run, err := d.ScanFile(ctx, source, "alice")
	if err != nil {
		t.Fatalf("ScanFile: %v", err)
	}
	if run.Status != string(catalog.StatusPending) || run.Owner != "alice" {
		t.Fatalf("queued run = %+v", run)
	}

	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 staged copy, got %d", len(entries))
	}
}

func TestDaemonDatabaseHealth(t *testing.T) {
	d, cfg := newTestDaemon(t)

	health, err := d.DatabaseHealth(context.Background())
	if err != nil {
		t.Fatalf("DatabaseHealth: %v", err)
	}
	if !health.DatabaseReadable {
		t.Fatalf("expected a readable catalog: %+v", health)
	}
	if health.DBPath == "" || filepath.Dir(health.DBPath) != cfg.Paths.DataDir {
		t.Fatalf("DBPath = %q, want file under %q", health.DBPath, cfg.Paths.DataDir)
	}
}

func TestDaemonTestNotificationWithoutSinks(t *testing.T) {
	d, cfg := newTestDaemon(t)
	cfg.Notifications.FeedEnabled = false
	cfg.Notifications.NtfyTopic = ""

	ok, detail, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if ok {
		t.Fatal("expected test notification to be skipped without sinks")
	}
	if detail != "no notification sinks configured" {
		t.Fatalf("detail = %q", detail)
	}
}
