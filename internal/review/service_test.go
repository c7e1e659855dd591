package review_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"pixguard/internal/catalog"
	"pixguard/internal/dossier"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
	"pixguard/internal/providers"
	"pixguard/internal/review"
	"pixguard/internal/scoring"
	"pixguard/internal/services"
	"pixguard/internal/testsupport"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event notify.Event, _ notify.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(event notify.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == event {
			n++
		}
	}
	return n
}

type failingFactory struct {
	err error
}

func (f *failingFactory) Ensure(context.Context, dossier.BuildRequest) (*catalog.Dossier, bool, error) {
	return nil, false, f.err
}

type reviewFixture struct {
	store     *catalog.Store
	service   *review.Service
	publisher *recordingPublisher
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	publisher := &recordingPublisher{}
	builder := dossier.NewBuilderWithDependencies(cfg, store, logging.NewNop(), nil)
	return &reviewFixture{
		store:     store,
		service:   review.NewServiceWithDependencies(store, logging.NewNop(), builder, publisher),
		publisher: publisher,
	}
}

func (f *reviewFixture) seedPendingMatch(t *testing.T, url string) *catalog.Match {
	t.Helper()
	ctx := context.Background()

	source := testsupport.SeedFingerprintedAsset(t, f.store, "alice", "dd44-"+url, "f0f0f0f0f0f0f0f0", "")
	matched, err := f.store.EnsureMatchedAsset(ctx, &catalog.MatchedAsset{
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
	match, _, err := f.store.InsertMatchIfAbsent(ctx, &catalog.Match{
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

func TestReviewConfirmCreatesDossierOnce(t *testing.T) {
	f := newReviewFixture(t)
	match := f.seedPendingMatch(t, "https://printshop.example/a.jpg")
	ctx := context.Background()

	first, err := f.service.Review(ctx, match.ID, review.ActionConfirm, "alice")
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if !first.Transitioned || first.Status != catalog.MatchConfirmed {
		t.Fatalf("first confirm outcome = %+v", first)
	}
	if first.DossierErr != nil {
		t.Fatalf("first confirm dossier error: %v", first.DossierErr)
	}
	if first.Dossier == nil {
		t.Fatal("first confirm returned no dossier")
	}
	if first.Match.ReviewedBy != "alice" {
		t.Errorf("ReviewedBy = %q, want alice", first.Match.ReviewedBy)
	}

	second, err := f.service.Review(ctx, match.ID, review.ActionConfirm, "bob")
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if second.Transitioned {
		t.Error("second confirm must be a no-op")
	}
	if second.Status != catalog.MatchConfirmed {
		t.Errorf("second confirm status = %q", second.Status)
	}
	if second.Dossier == nil || second.Dossier.ID != first.Dossier.ID {
		t.Errorf("second confirm dossier = %+v, want the original %d", second.Dossier, first.Dossier.ID)
	}

	count, err := f.store.CountDossiersForMatch(ctx, match.ID)
	if err != nil {
		t.Fatalf("count dossiers: %v", err)
	}
	if count != 1 {
		t.Errorf("dossier count = %d, want 1", count)
	}
	if f.publisher.count(notify.EventMatchConfirmed) != 1 {
		t.Errorf("EventMatchConfirmed published %d times, want 1", f.publisher.count(notify.EventMatchConfirmed))
	}
}

func TestReviewDeclineNeverCreatesDossier(t *testing.T) {
	f := newReviewFixture(t)
	match := f.seedPendingMatch(t, "https://printshop.example/b.jpg")
	ctx := context.Background()

	outcome, err := f.service.Review(ctx, match.ID, review.ActionDecline, "alice")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if !outcome.Transitioned || outcome.Status != catalog.MatchDeclined {
		t.Fatalf("decline outcome = %+v", outcome)
	}
	if outcome.Dossier != nil || outcome.DossierErr != nil {
		t.Errorf("decline produced dossier state: %+v %v", outcome.Dossier, outcome.DossierErr)
	}

	// Redeclining, and even confirming afterwards, changes nothing.
	again, err := f.service.Review(ctx, match.ID, review.ActionConfirm, "bob")
	if err != nil {
		t.Fatalf("re-review: %v", err)
	}
	if again.Transitioned || again.Status != catalog.MatchDeclined {
		t.Errorf("re-review outcome = %+v, want settled decline", again)
	}

	count, err := f.store.CountDossiersForMatch(ctx, match.ID)
	if err != nil {
		t.Fatalf("count dossiers: %v", err)
	}
	if count != 0 {
		t.Errorf("dossier count = %d, want 0", count)
	}
	if f.publisher.count(notify.EventMatchDeclined) != 1 {
		t.Errorf("EventMatchDeclined published %d times, want 1", f.publisher.count(notify.EventMatchDeclined))
	}
}

func TestReviewUnknownMatchIsNotFound(t *testing.T) {
	f := newReviewFixture(t)
	if _, err := f.service.Review(context.Background(), 424242, review.ActionConfirm, "alice"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("Review error = %v, want %v", err, services.ErrNotFound)
	}
}

func TestReviewConfirmSurvivesDossierFailure(t *testing.T) {
	f := newReviewFixture(t)
	match := f.seedPendingMatch(t, "https://printshop.example/c.jpg")
	boom := services.Wrap(services.ErrPersistence, "dossier", "persist dossier", "Could not record the dossier; retry the confirmation", errors.New("disk full"))
	broken := review.NewServiceWithDependencies(f.store, logging.NewNop(), &failingFactory{err: boom}, f.publisher)
	ctx := context.Background()

	outcome, err := broken.Review(ctx, match.ID, review.ActionConfirm, "alice")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !outcome.Transitioned || outcome.Status != catalog.MatchConfirmed {
		t.Fatalf("confirm outcome = %+v", outcome)
	}
	if outcome.DossierErr == nil {
		t.Fatal("dossier failure not reported on the outcome")
	}

	stored, err := f.store.GetMatch(ctx, match.ID)
	if err != nil {
		t.Fatalf("reload match: %v", err)
	}
	if stored.Status != catalog.MatchConfirmed {
		t.Errorf("match rolled back to %q after dossier failure", stored.Status)
	}

	// The repair path creates the dossier that failed at confirmation.
	repaired, err := f.service.EnsureDossier(ctx, match.ID)
	if err != nil {
		t.Fatalf("ensure dossier: %v", err)
	}
	if repaired == nil {
		t.Fatal("repair returned no dossier")
	}
	count, err := f.store.CountDossiersForMatch(ctx, match.ID)
	if err != nil {
		t.Fatalf("count dossiers: %v", err)
	}
	if count != 1 {
		t.Errorf("dossier count = %d, want 1", count)
	}
}

func TestEnsureDossierRequiresConfirmedMatch(t *testing.T) {
	f := newReviewFixture(t)
	match := f.seedPendingMatch(t, "https://printshop.example/d.jpg")

	if _, err := f.service.EnsureDossier(context.Background(), match.ID); !errors.Is(err, services.ErrState) {
		t.Errorf("EnsureDossier on pending match error = %v, want %v", err, services.ErrState)
	}
}

func TestReviewConcurrentConfirmsCreateOneDossier(t *testing.T) {
	f := newReviewFixture(t)
	match := f.seedPendingMatch(t, "https://printshop.example/e.jpg")
	ctx := context.Background()

	var wg sync.WaitGroup
	outcomes := make([]*review.Outcome, 2)
	errs := make([]error, 2)
	for i := range outcomes {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			outcomes[slot], errs[slot] = f.service.Review(ctx, match.ID, review.ActionConfirm, "alice")
		}(i)
	}
	wg.Wait()

	transitioned := 0
	for i, outcome := range outcomes {
		if errs[i] != nil {
			t.Fatalf("reviewer %d: %v", i, errs[i])
		}
		if outcome.Status != catalog.MatchConfirmed {
			t.Errorf("reviewer %d saw status %q", i, outcome.Status)
		}
		if outcome.Transitioned {
			transitioned++
		}
	}
	if transitioned != 1 {
		t.Errorf("%d reviewers won the transition, want exactly 1", transitioned)
	}

	count, err := f.store.CountDossiersForMatch(ctx, match.ID)
	if err != nil {
		t.Fatalf("count dossiers: %v", err)
	}
	if count != 1 {
		t.Errorf("dossier count = %d, want 1", count)
	}
}

func TestParseAction(t *testing.T) {
	if action, err := review.ParseAction(" Confirm "); err != nil || action != review.ActionConfirm {
		t.Errorf("ParseAction(Confirm) = %v, %v", action, err)
	}
	if action, err := review.ParseAction("decline"); err != nil || action != review.ActionDecline {
		t.Errorf("ParseAction(decline) = %v, %v", action, err)
	}
	if _, err := review.ParseAction("maybe"); !errors.Is(err, services.ErrValidation) {
		t.Errorf("ParseAction(maybe) error = %v, want %v", err, services.ErrValidation)
	}
}
