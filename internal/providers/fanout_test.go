package providers_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pixguard/internal/providers"
)

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
	return s.candidates, nil
}

func externalCandidate(provider string, position int, imageURL string) providers.Candidate {
	return providers.Candidate{
		Provider:        provider,
		ImageURL:        imageURL,
		Title:           "candidate",
		Position:        position,
		Similarity:      0.85,
		SimilarityKnown: true,
	}
}

func TestCollectSurvivesOneSourceTimingOut(t *testing.T) {
	slow := &stubSource{name: "slow", delay: 5 * time.Second}
	fast := &stubSource{
		name: "fast",
		candidates: []providers.Candidate{
			externalCandidate("fast", 1, "https://a.example.com/1.jpg"),
			externalCandidate("fast", 2, "https://a.example.com/2.jpg"),
			externalCandidate("fast", 3, "https://a.example.com/3.jpg"),
		},
	}

	fanout := providers.NewFanout(nil, 50*time.Millisecond, slow, fast)
	candidates, failures, err := fanout.Collect(context.Background(), providers.Query{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates from the healthy source, got %d", len(candidates))
	}
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure record, got %d", len(failures))
	}
	if failures[0].Source != "slow" {
		t.Fatalf("failure attributed to %q, want slow", failures[0].Source)
	}
	if !strings.Contains(failures[0].Reason, "deadline") {
		t.Fatalf("failure reason %q does not mention the deadline", failures[0].Reason)
	}
}

func TestCollectEmptyUnionIsNotAnError(t *testing.T) {
	a := &stubSource{name: "a", err: errors.New("boom")}
	b := &stubSource{name: "b", err: errors.New("also boom")}

	fanout := providers.NewFanout(nil, time.Second, a, b)
	candidates, failures, err := fanout.Collect(context.Background(), providers.Query{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
	if len(failures) != 2 {
		t.Fatalf("expected 2 failure records, got %d", len(failures))
	}
}

func TestCollectDropsCandidatesWithoutAnyTarget(t *testing.T) {
	src := &stubSource{
		name: "src",
		candidates: []providers.Candidate{
			externalCandidate("src", 1, "https://a.example.com/1.jpg"),
			{Provider: "src", Title: "no url at all", Position: 2},
			{Provider: "src", InternalAssetID: 42, Position: 3},
		},
	}

	fanout := providers.NewFanout(nil, time.Second, src)
	candidates, _, err := fanout.Collect(context.Background(), providers.Query{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected the url-less candidate dropped, got %d candidates", len(candidates))
	}
	for _, c := range candidates {
		if !c.Resolvable() {
			t.Fatalf("unresolvable candidate survived: %+v", c)
		}
	}
}

func TestCollectTruncatesToQueryLimit(t *testing.T) {
	a := &stubSource{
		name: "a",
		candidates: []providers.Candidate{
			externalCandidate("a", 1, "https://a.example.com/1.jpg"),
			externalCandidate("a", 2, "https://a.example.com/2.jpg"),
			externalCandidate("a", 3, "https://a.example.com/3.jpg"),
		},
	}
	b := &stubSource{
		name: "b",
		candidates: []providers.Candidate{
			externalCandidate("b", 1, "https://b.example.com/1.jpg"),
			externalCandidate("b", 2, "https://b.example.com/2.jpg"),
		},
	}

	fanout := providers.NewFanout(nil, time.Second, a, b)
	candidates, _, err := fanout.Collect(context.Background(), providers.Query{Limit: 4})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(candidates) != 4 {
		t.Fatalf("expected truncation to 4 candidates, got %d", len(candidates))
	}
	if candidates[3].Provider != "b" || candidates[3].Position != 1 {
		t.Fatalf("truncation kept the wrong tail: %+v", candidates[3])
	}
}

func TestCollectOrderIsIndependentOfCompletionOrder(t *testing.T) {
	late := &stubSource{
		name:       "alpha",
		delay:      30 * time.Millisecond,
		candidates: []providers.Candidate{externalCandidate("alpha", 1, "https://alpha.example.com/1.jpg")},
	}
	early := &stubSource{
		name:       "zeta",
		candidates: []providers.Candidate{externalCandidate("zeta", 1, "https://zeta.example.com/1.jpg")},
	}

	fanout := providers.NewFanout(nil, time.Second, late, early)
	candidates, _, err := fanout.Collect(context.Background(), providers.Query{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Provider != "alpha" || candidates[1].Provider != "zeta" {
		t.Fatalf("candidates not in provider order: %q then %q", candidates[0].Provider, candidates[1].Provider)
	}
}

func TestCollectPropagatesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &stubSource{name: "src", delay: time.Minute}
	fanout := providers.NewFanout(nil, time.Second, src)
	_, _, err := fanout.Collect(ctx, providers.Query{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
