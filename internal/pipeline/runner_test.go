package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/embedding"
	"pixguard/internal/fingerprint"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
	"pixguard/internal/providers"
	"pixguard/internal/scoring"
	"pixguard/internal/services"
	"pixguard/internal/storage"
	"pixguard/internal/testsupport"
)

func scanHandlers(cfg *config.Config, store *catalog.Store, models *embedding.Lazy, objects storage.Backend, fanout *providers.Fanout, notifier notify.Service) Handlers {
	logger := logging.NewNop()
	engine := fingerprint.NewEngine(cfg, models, nil, logger)
	return Handlers{
		Fingerprinter: NewFingerprinterWithDependencies(cfg, store, logger, engine, objects),
		Fetcher:       NewFetcherWithDependencies(cfg, store, logger, fanout, objects),
		Scorer:        NewScorerWithDependencies(cfg, store, logger, scoring.NewScorer(cfg, models, logger)),
		Persister:     NewPersister(store, logger),
		Notifier:      NewNotifierWithDependencies(store, logger, notifier),
	}
}

func TestRunnerDrivesScanToCompletion(t *testing.T) {
	env := newPipelineEnv(t)
	models := lazyModels(&stubModels{imageVec: []float32{0.6, 0.8}})
	source := &stubSource{name: "serpapi", candidates: []providers.Candidate{
		externalCandidate(0.9, "https://img.example/a.jpg"),
		externalCandidate(0.5, "https://img.example/b.jpg"),
	}}
	fanout := providers.NewFanout(logging.NewNop(), 0, source)
	notifier := &stubNotifier{}
	runner := NewRunnerWithHandlers(env.cfg, env.store, logging.NewNop(), notifier,
		scanHandlers(env.cfg, env.store, models, env.objects, fanout, notifier))

	staged := filepath.Join(env.cfg.Paths.StagingDir, "sunrise.png")
	testsupport.WriteTestPNG(t, staged, 11)
	ctx := context.Background()

	result, err := runner.Run(ctx, Input{Owner: "ansel", Filename: "sunrise.png", StagedPath: staged})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Status != catalog.StatusCompleted {
		t.Fatalf("result = %+v, want completed success", result)
	}
	if len(result.Matches) != 1 || result.Matches[0].Score != 0.9 {
		t.Fatalf("matches = %+v, want one 0.9 match", result.Matches)
	}

	stored, err := env.store.GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if stored.Status != catalog.StatusCompleted {
		t.Errorf("persisted status = %q, want completed", stored.Status)
	}
	if stored.ProgressPercent < 100 {
		t.Errorf("persisted percent = %v, want 100", stored.ProgressPercent)
	}

	if len(notifier.events) != 2 || notifier.events[0] != notify.EventScanStarted || notifier.events[1] != notify.EventMatchesFound {
		t.Errorf("events = %v, want scan_started then matches_found", notifier.events)
	}
}

func TestRunnerAbortsWhenFingerprintingFails(t *testing.T) {
	env := newPipelineEnv(t)
	models := lazyModels(&stubModels{imageVec: []float32{0.6, 0.8}})
	source := &stubSource{name: "serpapi"}
	fanout := providers.NewFanout(logging.NewNop(), 0, source)
	notifier := &stubNotifier{}
	runner := NewRunnerWithHandlers(env.cfg, env.store, logging.NewNop(), notifier,
		scanHandlers(env.cfg, env.store, models, env.objects, fanout, notifier))

	missing := filepath.Join(env.cfg.Paths.StagingDir, "never-written.png")
	result, err := runner.Run(context.Background(), Input{Owner: "ansel", Filename: "never-written.png", StagedPath: missing})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Fatal("unreadable input must not report success")
	}
	if result.Status != catalog.StatusReview {
		t.Errorf("status = %q, want review for input failures", result.Status)
	}
	if !strings.Contains(result.Error, "Unreadable image") {
		t.Errorf("error = %q, want the input failure message", result.Error)
	}
	if source.calls != 0 {
		t.Errorf("providers were queried %d times after a fingerprint failure", source.calls)
	}
	if len(result.Matches) != 0 {
		t.Errorf("matches = %+v, want none", result.Matches)
	}
}

func TestRunnerRescansProtectedAsset(t *testing.T) {
	env := newPipelineEnv(t)
	asset := testsupport.SeedFingerprintedAsset(t, env.store, "ansel", "rescan-sha", "00000000000000ff", "[0.6,0.8]")
	models := lazyModels(&stubModels{imageVec: []float32{0.6, 0.8}})
	source := &stubSource{name: "serpapi", candidates: []providers.Candidate{
		externalCandidate(0.93, "https://img.example/stolen.jpg"),
	}}
	fanout := providers.NewFanout(logging.NewNop(), 0, source)
	runner := NewRunnerWithHandlers(env.cfg, env.store, logging.NewNop(), &stubNotifier{},
		scanHandlers(env.cfg, env.store, models, env.objects, fanout, &stubNotifier{}))

	result, err := runner.Run(context.Background(), Input{Owner: "ansel", SourceAssetID: asset.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.SourceAssetID != asset.ID {
		t.Errorf("SourceAssetID = %d, want %d", result.SourceAssetID, asset.ID)
	}
	if len(result.Matches) != 1 {
		t.Errorf("matches = %+v, want one", result.Matches)
	}
}

func TestRunnerRejectsEmptyInput(t *testing.T) {
	env := newPipelineEnv(t)
	runner := NewRunnerWithHandlers(env.cfg, env.store, logging.NewNop(), nil, Handlers{})

	if _, err := runner.Run(context.Background(), Input{Owner: "ansel"}); !errors.Is(err, services.ErrValidation) {
		t.Errorf("Run error = %v, want %v", err, services.ErrValidation)
	}
}
