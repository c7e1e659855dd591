package pipeline

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"testing"
	"time"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/embedding"
	"pixguard/internal/fingerprint"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
	"pixguard/internal/providers"
	"pixguard/internal/scoring"
	"pixguard/internal/stage"
	"pixguard/internal/storage"
	"pixguard/internal/testsupport"
)

type stubModels struct {
	imageVec []float32
	textVec  map[string][]float32
	imageErr error
	textErr  error
}

func (s *stubModels) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if s.imageErr != nil {
		return nil, s.imageErr
	}
	return append([]float32(nil), s.imageVec...), nil
}

func (s *stubModels) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if s.textErr != nil {
		return nil, s.textErr
	}
	if vec, ok := s.textVec[text]; ok {
		return append([]float32(nil), vec...), nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func (s *stubModels) Dim() int { return 2 }

func (s *stubModels) Close() error { return nil }

func lazyModels(provider embedding.Provider) *embedding.Lazy {
	return embedding.NewLazy(func() (embedding.Provider, error) { return provider, nil })
}

func failingModels(err error) *embedding.Lazy {
	return embedding.NewLazy(func() (embedding.Provider, error) { return nil, err })
}

type stubSource struct {
	name       string
	candidates []providers.Candidate
	err        error
	delay      time.Duration
	calls      int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Search(ctx context.Context, query providers.Query) ([]providers.Candidate, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]providers.Candidate(nil), s.candidates...), nil
}

type stubNotifier struct {
	events   []notify.Event
	payloads []notify.Payload
	err      error
}

func (s *stubNotifier) Publish(ctx context.Context, event notify.Event, payload notify.Payload) error {
	s.events = append(s.events, event)
	s.payloads = append(s.payloads, payload)
	return s.err
}

func externalCandidate(similarity float64, imageURL string) providers.Candidate {
	return providers.Candidate{
		Provider:        "serpapi",
		ImageURL:        imageURL,
		Title:           "Listing",
		SourceDomain:    "example.com",
		Similarity:      similarity,
		SimilarityKnown: true,
		Basis:           "provider",
	}
}

func newLocalBackend(t testing.TB, cfg *config.Config) storage.Backend {
	t.Helper()
	backend, err := storage.FromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("storage backend: %v", err)
	}
	return backend
}

type pipelineEnv struct {
	cfg     *config.Config
	store   *catalog.Store
	objects storage.Backend
}

func newPipelineEnv(t testing.TB) *pipelineEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return &pipelineEnv{
		cfg:     cfg,
		store:   testsupport.MustOpenStore(t, cfg),
		objects: newLocalBackend(t, cfg),
	}
}

// fingerprintedRun seeds a protected asset and returns a run that already
// carries its fingerprint payload, ready for the fetching stage onward.
func fingerprintedRun(t testing.TB, env *pipelineEnv, owner, sha string) *catalog.Run {
	t.Helper()
	asset := testsupport.SeedFingerprintedAsset(t, env.store, owner, sha, "00000000000000ff", "[0.6,0.8]")
	run := testsupport.NewRun(t, env.store, owner, "seeded.png", testsupport.StagePNG(t, "seeded.png"))
	run.SourceAssetID = &asset.ID
	fp := fingerprint.Fingerprint{PHash: asset.PHash, Embedding: []float32{0.6, 0.8}}
	payload, err := stage.EncodeFingerprint(&fp)
	if err != nil {
		t.Fatalf("encode fingerprint: %v", err)
	}
	run.FingerprintJSON = payload
	return run
}

func executeStage(t testing.TB, handler stage.Handler, run *catalog.Run) {
	t.Helper()
	ctx := context.Background()
	if err := handler.Prepare(ctx, run); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := handler.Execute(ctx, run); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

// scanStages builds the full stage sequence against stubbed external deps.
func scanStages(cfg *config.Config, store *catalog.Store, models *embedding.Lazy, objects storage.Backend, fanout *providers.Fanout, notifier notify.Service) []stage.Handler {
	logger := logging.NewNop()
	engine := fingerprint.NewEngine(cfg, models, nil, logger)
	return []stage.Handler{
		NewFingerprinterWithDependencies(cfg, store, logger, engine, objects),
		NewFetcherWithDependencies(cfg, store, logger, fanout, objects),
		NewScorerWithDependencies(cfg, store, logger, scoring.NewScorer(cfg, models, logger)),
		NewPersister(store, logger),
		NewNotifierWithDependencies(store, logger, notifier),
	}
}

func TestScanPipelineEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	objects := newLocalBackend(t, cfg)
	models := lazyModels(&stubModels{imageVec: []float32{0.6, 0.8}})

	staged := filepath.Join(cfg.Paths.StagingDir, "sunset.png")
	testsupport.WriteTestPNG(t, staged, 7)
	run := testsupport.NewRun(t, store, "ansel", "sunset.png", staged)

	source := &stubSource{name: "serpapi", candidates: []providers.Candidate{
		externalCandidate(0.9, "https://img.example/a.jpg"),
		externalCandidate(0.5, "https://img.example/b.jpg"),
	}}
	fanout := providers.NewFanout(logging.NewNop(), 0, source)
	notifier := &stubNotifier{}

	for _, handler := range scanStages(cfg, store, models, objects, fanout, notifier) {
		executeStage(t, handler, run)
	}

	if run.SourceAssetID == nil {
		t.Fatal("expected run to be linked to a source asset")
	}
	if run.MatchCount != 1 {
		t.Fatalf("expected exactly 1 match, got %d", run.MatchCount)
	}
	matches, err := store.MatchesForAsset(context.Background(), *run.SourceAssetID)
	if err != nil {
		t.Fatalf("matches for asset: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 persisted match, got %d", len(matches))
	}
	if matches[0].Status != catalog.MatchPending {
		t.Fatalf("expected pending match, got %s", matches[0].Status)
	}
	if matches[0].Score != 0.9 {
		t.Fatalf("expected score 0.9, got %v", matches[0].Score)
	}

	run.Status = catalog.StatusCompleted
	result, err := BuildResult(context.Background(), store, run)
	if err != nil {
		t.Fatalf("build result: %v", err)
	}
	if !result.Success || len(result.Matches) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if len(notifier.events) != 1 || notifier.events[0] != notify.EventMatchesFound {
		t.Fatalf("unexpected notification events: %v", notifier.events)
	}
	if notifier.payloads[0]["count"] != "1" {
		t.Fatalf("unexpected count payload: %q", notifier.payloads[0]["count"])
	}
}

func TestScanPipelineIsIdempotentAcrossRescans(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	objects := newLocalBackend(t, cfg)
	models := lazyModels(&stubModels{imageVec: []float32{0.6, 0.8}})

	staged := filepath.Join(cfg.Paths.StagingDir, "poster.png")
	testsupport.WriteTestPNG(t, staged, 3)
	first := testsupport.NewRun(t, store, "ansel", "poster.png", staged)

	source := &stubSource{name: "serpapi", candidates: []providers.Candidate{
		externalCandidate(0.92, "https://img.example/stolen.jpg"),
	}}
	fanout := providers.NewFanout(logging.NewNop(), 0, source)

	for _, handler := range scanStages(cfg, store, models, objects, fanout, &stubNotifier{}) {
		executeStage(t, handler, first)
	}
	if first.MatchCount != 1 {
		t.Fatalf("first scan: expected 1 match, got %d", first.MatchCount)
	}

	rescan, err := store.NewRescanRun(context.Background(), "ansel", *first.SourceAssetID)
	if err != nil {
		t.Fatalf("new rescan run: %v", err)
	}
	for _, handler := range scanStages(cfg, store, models, objects, fanout, &stubNotifier{}) {
		executeStage(t, handler, rescan)
	}

	matches, err := store.MatchesForAsset(context.Background(), *first.SourceAssetID)
	if err != nil {
		t.Fatalf("matches for asset: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("rescan duplicated matches: got %d", len(matches))
	}
	if rescan.MatchCount != 1 {
		t.Fatalf("rescan should report the existing match, got %d", rescan.MatchCount)
	}

	rescan.Status = catalog.StatusCompleted
	result, err := BuildResult(context.Background(), store, rescan)
	if err != nil {
		t.Fatalf("build result: %v", err)
	}
	if !result.Success || len(result.Matches) != 1 {
		t.Fatalf("rescan result should mirror the first scan: %+v", result)
	}
}

func TestScanSurvivesTimingOutProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	objects := newLocalBackend(t, cfg)
	models := lazyModels(&stubModels{imageVec: []float32{0.6, 0.8}})

	staged := filepath.Join(cfg.Paths.StagingDir, "print.png")
	testsupport.WriteTestPNG(t, staged, 9)
	run := testsupport.NewRun(t, store, "ansel", "print.png", staged)

	slow := &stubSource{name: "slow", delay: 5 * time.Second}
	fast := &stubSource{name: "marketplace", candidates: []providers.Candidate{
		externalCandidate(0.9, "https://img.example/1.jpg"),
		externalCandidate(0.8, "https://img.example/2.jpg"),
		externalCandidate(0.76, "https://img.example/3.jpg"),
	}}
	fanout := providers.NewFanout(logging.NewNop(), 50*time.Millisecond, slow, fast)

	for _, handler := range scanStages(cfg, store, models, objects, fanout, &stubNotifier{}) {
		executeStage(t, handler, run)
	}

	if run.MatchCount != 3 {
		t.Fatalf("expected 3 matches from the surviving source, got %d", run.MatchCount)
	}
	failures := stage.ParseFailures(run.ProviderFailuresJSON)
	if len(failures) != 1 || failures[0].Source != "slow" {
		t.Fatalf("expected the slow source to be recorded as failed: %+v", failures)
	}
}
