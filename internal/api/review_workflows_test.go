package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"pixguard/internal/catalog"
	"pixguard/internal/dossier"
	"pixguard/internal/logging"
	"pixguard/internal/providers"
	"pixguard/internal/review"
	"pixguard/internal/scoring"
	"pixguard/internal/services"
	"pixguard/internal/testsupport"
)

type stubDeliverer struct {
	sentTo string
	err    error
	calls  int
}

func (d *stubDeliverer) Deliver(ctx context.Context, dossier *catalog.Dossier) (string, error) {
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	return d.sentTo, nil
}

func newReviewer(env *workflowEnv, notifier *stubNotifier) *review.Service {
	builder := dossier.NewBuilderWithDependencies(env.cfg, env.store, logging.NewNop(), nil)
	return review.NewServiceWithDependencies(env.store, logging.NewNop(), builder, notifier)
}

func seedPendingMatch(t *testing.T, env *workflowEnv, url string) *catalog.Match {
	t.Helper()
	ctx := context.Background()

	source := testsupport.SeedFingerprintedAsset(t, env.store, "alice", "api-"+url, "f0f0f0f0f0f0f0f0", "")
	matched, err := env.store.EnsureMatchedAsset(ctx, &catalog.MatchedAsset{
		Kind:         catalog.AssetExternal,
		URL:          url,
		Provider:     "serpapi",
		SourceDomain: "printshop.example",
	})
	if err != nil {
		t.Fatalf("ensure matched asset: %v", err)
	}

	payload, err := json.Marshal(scoring.Scored{
		Candidate: providers.Candidate{Provider: "serpapi", ImageURL: url, SourceDomain: "printshop.example"},
		Score:     0.9,
		Basis:     "image",
	})
	if err != nil {
		t.Fatalf("marshal candidate: %v", err)
	}
	match, _, err := env.store.InsertMatchIfAbsent(ctx, &catalog.Match{
		SourceAssetID:  source.ID,
		MatchedAssetID: matched.ID,
		Score:          0.9,
		Basis:          "image",
		CandidateJSON:  string(payload),
	})
	if err != nil {
		t.Fatalf("insert match: %v", err)
	}
	return match
}

func TestReviewMatchConfirmReportsDossier(t *testing.T) {
	env := newWorkflowEnv(t)
	notifier := &stubNotifier{}
	match := seedPendingMatch(t, env, "https://printshop.example/a.jpg")
	req := ReviewMatchRequest{
		Store:      env.store,
		Reviewer:   newReviewer(env, notifier),
		MatchID:    match.ID,
		Action:     "confirm",
		ReviewedBy: "alice",
	}
	ctx := context.Background()

	first, err := ReviewMatch(ctx, req)
	if err != nil {
		t.Fatalf("ReviewMatch: %v", err)
	}
	if !first.Success || first.Status != string(catalog.MatchConfirmed) || !first.Transitioned {
		t.Fatalf("first review = %+v", first)
	}
	if first.DossierID == 0 || first.DossierError != "" {
		t.Fatalf("first review dossier = %+v", first)
	}

	second, err := ReviewMatch(ctx, req)
	if err != nil {
		t.Fatalf("ReviewMatch again: %v", err)
	}
	if second.Transitioned {
		t.Fatal("replayed decision reported a fresh transition")
	}
	if second.DossierID != first.DossierID {
		t.Fatalf("dossier id changed: %d -> %d", first.DossierID, second.DossierID)
	}
}

func TestReviewMatchDeclineHasNoDossier(t *testing.T) {
	env := newWorkflowEnv(t)
	notifier := &stubNotifier{}
	match := seedPendingMatch(t, env, "https://printshop.example/b.jpg")

	result, err := ReviewMatch(context.Background(), ReviewMatchRequest{
		Store:      env.store,
		Reviewer:   newReviewer(env, notifier),
		MatchID:    match.ID,
		Action:     "decline",
		ReviewedBy: "alice",
	})
	if err != nil {
		t.Fatalf("ReviewMatch: %v", err)
	}
	if result.Status != string(catalog.MatchDeclined) || result.DossierID != 0 {
		t.Fatalf("decline result = %+v", result)
	}
}

func TestReviewMatchRejectsUnknownAction(t *testing.T) {
	env := newWorkflowEnv(t)
	_, err := ReviewMatch(context.Background(), ReviewMatchRequest{
		Store:   env.store,
		MatchID: 1,
		Action:  "maybe",
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestDeliverDossierSendsPending(t *testing.T) {
	env := newWorkflowEnv(t)
	notifier := &stubNotifier{}
	match := seedPendingMatch(t, env, "https://printshop.example/c.jpg")
	ctx := context.Background()

	reviewed, err := ReviewMatch(ctx, ReviewMatchRequest{
		Store:      env.store,
		Reviewer:   newReviewer(env, notifier),
		MatchID:    match.ID,
		Action:     "confirm",
		ReviewedBy: "alice",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	deliverer := &stubDeliverer{sentTo: "enforcement@example.com"}
	worker := dossier.NewWorkerWithDeliverer(env.cfg, env.store, logging.NewNop(), notifier, deliverer)

	dto, err := DeliverDossier(ctx, DeliverDossierRequest{
		Store:     env.store,
		Worker:    worker,
		DossierID: reviewed.DossierID,
	})
	if err != nil {
		t.Fatalf("DeliverDossier: %v", err)
	}
	if dto.Status != string(catalog.DeliveryDelivered) {
		t.Fatalf("status = %s, want delivered", dto.Status)
	}
	if dto.SentTo != "enforcement@example.com" || dto.Attempts != 1 {
		t.Fatalf("dossier = %+v", dto)
	}
	if deliverer.calls != 1 {
		t.Fatalf("deliverer calls = %d, want 1", deliverer.calls)
	}
}

func TestDeliverDossierUnknown(t *testing.T) {
	env := newWorkflowEnv(t)
	notifier := &stubNotifier{}
	worker := dossier.NewWorkerWithDeliverer(env.cfg, env.store, logging.NewNop(), notifier, &stubDeliverer{})

	_, err := DeliverDossier(context.Background(), DeliverDossierRequest{
		Store:     env.store,
		Worker:    worker,
		DossierID: 404,
	})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not-found error", err)
	}
}
