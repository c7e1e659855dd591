package api

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/embedding"
	"pixguard/internal/fingerprint"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
	"pixguard/internal/pipeline"
	"pixguard/internal/providers"
	"pixguard/internal/scoring"
	"pixguard/internal/services"
	"pixguard/internal/storage"
	"pixguard/internal/testsupport"
)

type stubModels struct {
	imageVec []float32
}

func (s *stubModels) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	return append([]float32(nil), s.imageVec...), nil
}

func (s *stubModels) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("no text model")
}

func (s *stubModels) Dim() int { return 2 }

func (s *stubModels) Close() error { return nil }

func lazyModels(provider embedding.Provider) *embedding.Lazy {
	return embedding.NewLazy(func() (embedding.Provider, error) { return provider, nil })
}

type stubSource struct {
	name       string
	candidates []providers.Candidate
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Search(ctx context.Context, query providers.Query) ([]providers.Candidate, error) {
	return append([]providers.Candidate(nil), s.candidates...), nil
}

type stubNotifier struct {
	events []notify.Event
}

func (s *stubNotifier) Publish(ctx context.Context, event notify.Event, payload notify.Payload) error {
	s.events = append(s.events, event)
	return nil
}

type workflowEnv struct {
	cfg     *config.Config
	store   *catalog.Store
	objects storage.Backend
	models  *embedding.Lazy
}

func newWorkflowEnv(t testing.TB) *workflowEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	objects, err := storage.FromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("storage backend: %v", err)
	}
	return &workflowEnv{
		cfg:     cfg,
		store:   store,
		objects: objects,
		models:  lazyModels(&stubModels{imageVec: []float32{0.6, 0.8}}),
	}
}

func (env *workflowEnv) fingerprinter() *pipeline.Fingerprinter {
	logger := logging.NewNop()
	engine := fingerprint.NewEngine(env.cfg, env.models, nil, logger)
	return pipeline.NewFingerprinterWithDependencies(env.cfg, env.store, logger, engine, env.objects)
}

func (env *workflowEnv) runner(source providers.Source, notifier notify.Service) *pipeline.Runner {
	logger := logging.NewNop()
	engine := fingerprint.NewEngine(env.cfg, env.models, nil, logger)
	fanout := providers.NewFanout(logger, 0, source)
	handlers := pipeline.Handlers{
		Fingerprinter: pipeline.NewFingerprinterWithDependencies(env.cfg, env.store, logger, engine, env.objects),
		Fetcher:       pipeline.NewFetcherWithDependencies(env.cfg, env.store, logger, fanout, env.objects),
		Scorer:        pipeline.NewScorerWithDependencies(env.cfg, env.store, logger, scoring.NewScorer(env.cfg, env.models, logger)),
		Persister:     pipeline.NewPersister(env.store, logger),
		Notifier:      pipeline.NewNotifierWithDependencies(env.store, logger, notifier),
	}
	return pipeline.NewRunnerWithHandlers(env.cfg, env.store, logger, notifier, handlers)
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

func TestProtectImageRegistersAndDedupes(t *testing.T) {
	env := newWorkflowEnv(t)
	path := filepath.Join(t.TempDir(), "original.png")
	testsupport.WriteTestPNG(t, path, 3)

	req := ProtectImageRequest{
		Config: env.cfg,
		Store:  env.store,
		Deps:   ScanDependencies{Fingerprinter: env.fingerprinter()},
		Path:   path,
		Owner:  "ansel",
	}
	ctx := context.Background()

	first, err := ProtectImage(ctx, req)
	if err != nil {
		t.Fatalf("ProtectImage: %v", err)
	}
	if !first.Created || first.Asset == nil {
		t.Fatalf("first protect = %+v, want created asset", first)
	}
	if !first.Asset.Fingerprinted() {
		t.Fatalf("asset not fingerprinted: %+v", first.Asset)
	}

	second, err := ProtectImage(ctx, req)
	if err != nil {
		t.Fatalf("ProtectImage again: %v", err)
	}
	if second.Created {
		t.Fatal("re-protecting identical bytes reported a new asset")
	}
	if second.Asset.ID != first.Asset.ID {
		t.Fatalf("asset id changed: %d -> %d", first.Asset.ID, second.Asset.ID)
	}
}

func TestProtectImageRequiresOwner(t *testing.T) {
	env := newWorkflowEnv(t)
	path := filepath.Join(t.TempDir(), "original.png")
	testsupport.WriteTestPNG(t, path, 4)

	_, err := ProtectImage(context.Background(), ProtectImageRequest{
		Config: env.cfg,
		Store:  env.store,
		Deps:   ScanDependencies{Fingerprinter: env.fingerprinter()},
		Path:   path,
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestScanImageQueuesRun(t *testing.T) {
	env := newWorkflowEnv(t)
	path := filepath.Join(t.TempDir(), "sunset.png")
	testsupport.WriteTestPNG(t, path, 5)

	result, err := ScanImage(context.Background(), ScanImageRequest{
		Config: env.cfg,
		Store:  env.store,
		Path:   path,
		Owner:  "ansel",
	})
	if err != nil {
		t.Fatalf("ScanImage: %v", err)
	}
	if result.Queued == nil || result.Result != nil {
		t.Fatalf("result = %+v, want queued run", result)
	}
	if result.Queued.Status != string(catalog.StatusPending) {
		t.Fatalf("status = %s, want pending", result.Queued.Status)
	}
	if result.Queued.OriginalFilename != "sunset.png" {
		t.Fatalf("filename = %s", result.Queued.OriginalFilename)
	}

	run, err := env.store.GetRun(context.Background(), result.Queued.ID)
	if err != nil || run == nil {
		t.Fatalf("load run: %v %v", run, err)
	}
	if run.StagedPath == path {
		t.Fatal("run references the caller's file instead of a staged copy")
	}
	if _, err := os.Stat(run.StagedPath); err != nil {
		t.Fatalf("staged copy missing: %v", err)
	}
}

func TestScanImageWaitReturnsMatches(t *testing.T) {
	env := newWorkflowEnv(t)
	source := &stubSource{name: "serpapi", candidates: []providers.Candidate{
		externalCandidate(0.9, "https://img.example/a.jpg"),
		externalCandidate(0.5, "https://img.example/b.jpg"),
	}}
	notifier := &stubNotifier{}

	path := filepath.Join(t.TempDir(), "sunrise.png")
	testsupport.WriteTestPNG(t, path, 6)

	result, err := ScanImage(context.Background(), ScanImageRequest{
		Config: env.cfg,
		Store:  env.store,
		Deps:   ScanDependencies{Runner: env.runner(source, notifier)},
		Path:   path,
		Owner:  "ansel",
		Wait:   true,
	})
	if err != nil {
		t.Fatalf("ScanImage: %v", err)
	}
	if result.Result == nil || result.Queued != nil {
		t.Fatalf("result = %+v, want terminal scan result", result)
	}
	scan := result.Result
	if !scan.Success || scan.Status != string(catalog.StatusCompleted) {
		t.Fatalf("scan = %+v, want completed success", scan)
	}
	if len(scan.Matches) != 1 || scan.Matches[0].SimilarityScore != 0.9 {
		t.Fatalf("matches = %+v, want one 0.9 match", scan.Matches)
	}
	if scan.ImageID == 0 {
		t.Fatal("scan result has no image id")
	}

	// Successful synchronous scans clean up their staged copy.
	entries, err := os.ReadDir(env.cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging dir not cleaned: %d entries", len(entries))
	}
}

func TestScanImageRejectsMissingFile(t *testing.T) {
	env := newWorkflowEnv(t)
	_, err := ScanImage(context.Background(), ScanImageRequest{
		Config: env.cfg,
		Store:  env.store,
		Path:   filepath.Join(t.TempDir(), "absent.png"),
		Owner:  "ansel",
	})
	if !errors.Is(err, services.ErrInput) {
		t.Fatalf("err = %v, want input error", err)
	}
}

func TestRescanAssetQueuesRun(t *testing.T) {
	env := newWorkflowEnv(t)
	asset := testsupport.SeedFingerprintedAsset(t, env.store, "ansel", "feed-1", "00000000000000ff", "[0.6,0.8]")

	result, err := RescanAsset(context.Background(), RescanAssetRequest{
		Config:  env.cfg,
		Store:   env.store,
		AssetID: asset.ID,
	})
	if err != nil {
		t.Fatalf("RescanAsset: %v", err)
	}
	if result.Queued == nil {
		t.Fatalf("result = %+v, want queued run", result)
	}
	if result.Queued.SourceAssetID != asset.ID {
		t.Fatalf("source asset id = %d, want %d", result.Queued.SourceAssetID, asset.ID)
	}
	if result.Queued.Owner != "ansel" {
		t.Fatalf("owner = %s, want ansel", result.Queued.Owner)
	}
}

func TestRescanAssetUnknown(t *testing.T) {
	env := newWorkflowEnv(t)
	_, err := RescanAsset(context.Background(), RescanAssetRequest{
		Config:  env.cfg,
		Store:   env.store,
		AssetID: 404,
	})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not-found error", err)
	}
}
