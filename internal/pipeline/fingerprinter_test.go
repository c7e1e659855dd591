package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"pixguard/internal/embedding"
	"pixguard/internal/fingerprint"
	"pixguard/internal/logging"
	"pixguard/internal/services"
	"pixguard/internal/stage"
	"pixguard/internal/testsupport"
)

func newTestFingerprinter(t testing.TB, env *pipelineEnv, models *embedding.Lazy) *Fingerprinter {
	t.Helper()
	if models == nil {
		models = lazyModels(&stubModels{imageVec: []float32{0.6, 0.8}})
	}
	engine := fingerprint.NewEngine(env.cfg, models, nil, logging.NewNop())
	return NewFingerprinterWithDependencies(env.cfg, env.store, logging.NewNop(), engine, env.objects)
}

func TestFingerprinterComputesSignalsAndRegistersAsset(t *testing.T) {
	env := newPipelineEnv(t)
	handler := newTestFingerprinter(t, env, nil)

	staged := filepath.Join(env.cfg.Paths.StagingDir, "vase.png")
	testsupport.WriteTestPNG(t, staged, 11)
	run := testsupport.NewRun(t, env.store, "ansel", "vase.png", staged)

	executeStage(t, handler, run)

	if run.SourceAssetID == nil {
		t.Fatal("expected run to reference the registered asset")
	}
	fp, err := stage.ParseFingerprint(run.FingerprintJSON)
	if err != nil {
		t.Fatalf("parse fingerprint: %v", err)
	}
	if len(fp.PHash) != 16 {
		t.Fatalf("expected 64-bit hex phash, got %q", fp.PHash)
	}
	if len(fp.Embedding) != 2 {
		t.Fatalf("expected stub embedding, got %v", fp.Embedding)
	}

	asset, err := env.store.GetSourceAsset(context.Background(), *run.SourceAssetID)
	if err != nil || asset == nil {
		t.Fatalf("load asset: %v", err)
	}
	if asset.PHash != fp.PHash {
		t.Fatalf("asset phash %q does not match payload %q", asset.PHash, fp.PHash)
	}
	if asset.EmbeddingJSON == "" {
		t.Fatal("expected embedding stored on asset")
	}
	exists, err := env.objects.Exists(context.Background(), asset.StorageKey)
	if err != nil || !exists {
		t.Fatalf("expected original in object storage (exists=%v err=%v)", exists, err)
	}
}

func TestFingerprinterFailsFastOnMissingFile(t *testing.T) {
	env := newPipelineEnv(t)
	handler := newTestFingerprinter(t, env, nil)

	run := testsupport.NewRun(t, env.store, "ansel", "ghost.png", filepath.Join(env.cfg.Paths.StagingDir, "ghost.png"))
	err := handler.Execute(context.Background(), run)
	if !errors.Is(err, services.ErrInput) {
		t.Fatalf("expected input error for missing file, got %v", err)
	}
}

func TestFingerprinterRejectsGarbageBytes(t *testing.T) {
	env := newPipelineEnv(t)
	handler := newTestFingerprinter(t, env, nil)

	staged := filepath.Join(env.cfg.Paths.StagingDir, "garbage.png")
	testsupport.WriteFile(t, staged, 4096)
	run := testsupport.NewRun(t, env.store, "ansel", "garbage.png", staged)

	err := handler.Execute(context.Background(), run)
	if !errors.Is(err, services.ErrInput) {
		t.Fatalf("expected input error for garbage bytes, got %v", err)
	}
}

func TestFingerprinterDegradesToHashWhenEmbedderFails(t *testing.T) {
	env := newPipelineEnv(t)
	handler := newTestFingerprinter(t, env, failingModels(errors.New("onnx runtime unavailable")))

	staged := filepath.Join(env.cfg.Paths.StagingDir, "hash-only.png")
	testsupport.WriteTestPNG(t, staged, 4)
	run := testsupport.NewRun(t, env.store, "ansel", "hash-only.png", staged)

	executeStage(t, handler, run)

	fp, err := stage.ParseFingerprint(run.FingerprintJSON)
	if err != nil {
		t.Fatalf("parse fingerprint: %v", err)
	}
	if fp.PHash == "" {
		t.Fatal("expected phash to survive embedder failure")
	}
	if len(fp.Embedding) != 0 {
		t.Fatalf("expected no embedding, got %v", fp.Embedding)
	}
	asset, err := env.store.GetSourceAsset(context.Background(), *run.SourceAssetID)
	if err != nil || asset == nil {
		t.Fatalf("load asset: %v", err)
	}
	if asset.EmbeddingJSON != "" {
		t.Fatalf("expected empty embedding on asset, got %q", asset.EmbeddingJSON)
	}
}

func TestFingerprinterIsDeterministicAndDeduplicates(t *testing.T) {
	env := newPipelineEnv(t)
	handler := newTestFingerprinter(t, env, nil)

	first := filepath.Join(env.cfg.Paths.StagingDir, "copy-a.png")
	second := filepath.Join(env.cfg.Paths.StagingDir, "copy-b.png")
	testsupport.WriteTestPNG(t, first, 21)
	testsupport.WriteTestPNG(t, second, 21)

	runA := testsupport.NewRun(t, env.store, "ansel", "copy-a.png", first)
	runB := testsupport.NewRun(t, env.store, "ansel", "copy-b.png", second)
	executeStage(t, handler, runA)
	executeStage(t, handler, runB)

	fpA, _ := stage.ParseFingerprint(runA.FingerprintJSON)
	fpB, _ := stage.ParseFingerprint(runB.FingerprintJSON)
	if fpA.PHash != fpB.PHash {
		t.Fatalf("identical bytes produced different hashes: %q vs %q", fpA.PHash, fpB.PHash)
	}
	if *runA.SourceAssetID != *runB.SourceAssetID {
		t.Fatalf("identical bytes should deduplicate to one asset: %d vs %d", *runA.SourceAssetID, *runB.SourceAssetID)
	}
}

func TestFingerprinterRescanReusesStoredSignals(t *testing.T) {
	env := newPipelineEnv(t)
	// A rescan of a fingerprinted asset must not need the models at all.
	handler := newTestFingerprinter(t, env, failingModels(errors.New("models must not load")))

	asset := testsupport.SeedFingerprintedAsset(t, env.store, "ansel", "feedface", "00000000000000ff", "[0.6,0.8]")
	run, err := env.store.NewRescanRun(context.Background(), "ansel", asset.ID)
	if err != nil {
		t.Fatalf("new rescan run: %v", err)
	}

	executeStage(t, handler, run)

	fp, err := stage.ParseFingerprint(run.FingerprintJSON)
	if err != nil {
		t.Fatalf("parse fingerprint: %v", err)
	}
	if fp.PHash != "00000000000000ff" {
		t.Fatalf("expected stored phash, got %q", fp.PHash)
	}
	if len(fp.Embedding) != 2 {
		t.Fatalf("expected stored embedding, got %v", fp.Embedding)
	}
}
