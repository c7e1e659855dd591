package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pixguard/internal/logging"
	"pixguard/internal/providers"
	"pixguard/internal/services"
	"pixguard/internal/stage"
	"pixguard/internal/testsupport"
)

func TestFetcherCollectsAndRecordsPartialFailures(t *testing.T) {
	env := newPipelineEnv(t)
	run := fingerprintedRun(t, env, "ansel", "aa01")

	broken := &stubSource{name: "serpapi", err: errors.New("rate limited")}
	healthy := &stubSource{name: "marketplace", candidates: []providers.Candidate{
		externalCandidate(0.9, "https://img.example/a.jpg"),
	}}
	fanout := providers.NewFanout(logging.NewNop(), 0, broken, healthy)
	handler := NewFetcherWithDependencies(env.cfg, env.store, logging.NewNop(), fanout, env.objects)

	executeStage(t, handler, run)

	candidates, err := stage.ParseCandidates(run.CandidatesJSON)
	if err != nil {
		t.Fatalf("parse candidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected the surviving source's candidate, got %d", len(candidates))
	}
	failures := stage.ParseFailures(run.ProviderFailuresJSON)
	if len(failures) != 1 || failures[0].Source != "serpapi" {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if !strings.Contains(failures[0].Reason, "rate limited") {
		t.Fatalf("expected failure reason to carry the cause, got %q", failures[0].Reason)
	}
}

func TestFetcherEmptyUnionIsSuccess(t *testing.T) {
	env := newPipelineEnv(t)
	run := fingerprintedRun(t, env, "ansel", "bb02")

	first := &stubSource{name: "serpapi", err: errors.New("authentication rejected")}
	second := &stubSource{name: "corpus", err: errors.New("database locked")}
	fanout := providers.NewFanout(logging.NewNop(), 0, first, second)
	handler := NewFetcherWithDependencies(env.cfg, env.store, logging.NewNop(), fanout, env.objects)

	if err := handler.Execute(context.Background(), run); err != nil {
		t.Fatalf("all sources failing must not fail the stage: %v", err)
	}
	if run.CandidatesJSON != "" {
		t.Fatalf("expected no candidates, got %q", run.CandidatesJSON)
	}
	if failures := stage.ParseFailures(run.ProviderFailuresJSON); len(failures) != 2 {
		t.Fatalf("expected both sources recorded as failed: %+v", failures)
	}
}

func TestFetcherRequiresFingerprint(t *testing.T) {
	env := newPipelineEnv(t)
	run := testsupport.NewRun(t, env.store, "ansel", "bare.png", testsupport.StagePNG(t, "bare.png"))

	fanout := providers.NewFanout(logging.NewNop(), 0)
	handler := NewFetcherWithDependencies(env.cfg, env.store, logging.NewNop(), fanout, env.objects)

	err := handler.Execute(context.Background(), run)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error without a fingerprint, got %v", err)
	}
}

func TestFetcherHealthRequiresASource(t *testing.T) {
	env := newPipelineEnv(t)
	fanout := providers.NewFanout(logging.NewNop(), 0)
	handler := NewFetcherWithDependencies(env.cfg, env.store, logging.NewNop(), fanout, env.objects)

	env.cfg.Providers.SerpAPIKey = ""
	env.cfg.Providers.CorpusEnabled = false
	if health := handler.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy fetcher without any sources")
	}

	env.cfg.Providers.CorpusEnabled = true
	if health := handler.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy fetcher with the corpus enabled: %+v", health)
	}
}
