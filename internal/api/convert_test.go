package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"pixguard/internal/catalog"
	"pixguard/internal/pipeline"
	"pixguard/internal/providers"
	"pixguard/internal/scoring"
	"pixguard/internal/stage"
	"pixguard/internal/workflow"
)

func TestFromRunDerivesLaneAndFailures(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assetID := int64(7)
	run := &catalog.Run{
		ID:               42,
		Owner:            "ansel",
		OriginalFilename: "sunset.png",
		SourceAssetID:    &assetID,
		Status:           catalog.StatusFingerprinting,
		ProgressStage:    "Fingerprinting",
		ProgressPercent:  40,
		MatchCount:       2,
		ProviderFailuresJSON: stage.EncodeFailures([]providers.Failure{
			{Source: "serpapi", Reason: "timeout"},
		}),
		CreatedAt: created,
		UpdatedAt: created,
	}

	dto := FromRun(run)
	if dto.ProcessingLane != string(catalog.LaneAnalysis) {
		t.Fatalf("lane = %s, want %s", dto.ProcessingLane, catalog.LaneAnalysis)
	}
	if dto.SourceAssetID != 7 {
		t.Fatalf("source asset id = %d, want 7", dto.SourceAssetID)
	}
	if len(dto.ProviderFailures) != 1 || dto.ProviderFailures[0] != "serpapi: timeout" {
		t.Fatalf("provider failures = %v", dto.ProviderFailures)
	}
	if dto.Progress.Stage != "Fingerprinting" || dto.Progress.Percent != 40 {
		t.Fatalf("progress = %+v", dto.Progress)
	}
	if dto.CreatedAt != "2026-03-01T10:00:00.000Z" {
		t.Fatalf("created at = %s", dto.CreatedAt)
	}
}

func TestFromMatchLiftsCandidateFacts(t *testing.T) {
	payload, err := json.Marshal(scoring.Scored{
		Candidate: providers.Candidate{
			Provider:     "serpapi",
			ImageURL:     "https://img.example/a.jpg",
			PageURL:      "https://shop.example/listing",
			Title:        "Canvas Print",
			SourceDomain: "shop.example",
		},
		Score: 0.93,
		Basis: "provider",
	})
	if err != nil {
		t.Fatalf("marshal candidate: %v", err)
	}
	reviewed := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	runID := int64(9)
	match := &catalog.Match{
		ID:             5,
		SourceAssetID:  7,
		MatchedAssetID: 11,
		RunID:          &runID,
		Score:          0.93,
		Basis:          "provider",
		Status:         catalog.MatchConfirmed,
		CandidateJSON:  string(payload),
		ReviewedAt:     &reviewed,
		ReviewedBy:     "alice",
	}

	dto := FromMatch(match)
	if dto.TargetURL != "https://img.example/a.jpg" {
		t.Fatalf("target url = %s", dto.TargetURL)
	}
	if dto.PageURL != "https://shop.example/listing" {
		t.Fatalf("page url = %s", dto.PageURL)
	}
	if dto.Provider != "serpapi" || dto.SourceDomain != "shop.example" || dto.Title != "Canvas Print" {
		t.Fatalf("facts = %+v", dto)
	}
	if dto.RunID != 9 || dto.ReviewedBy != "alice" || dto.ReviewedAt == "" {
		t.Fatalf("review fields = %+v", dto)
	}
}

func TestFromMatchToleratesCorruptCandidate(t *testing.T) {
	dto := FromMatch(&catalog.Match{ID: 1, Score: 0.8, Status: catalog.MatchPending, CandidateJSON: "{"})
	if dto.TargetURL != "" || dto.Provider != "" {
		t.Fatalf("expected empty facts, got %+v", dto)
	}
	if dto.SimilarityScore != 0.8 {
		t.Fatalf("score = %v, want 0.8", dto.SimilarityScore)
	}
}

func TestFromResultJSONContract(t *testing.T) {
	result := &pipeline.Result{
		Success:       true,
		RunID:         3,
		SourceAssetID: 7,
		Status:        catalog.StatusCompleted,
		Matches: []*catalog.Match{
			{ID: 5, MatchedAssetID: 11, Score: 0.9, Status: catalog.MatchPending},
		},
		ProviderFailures: []providers.Failure{{Source: "corpus", Reason: "disabled"}},
	}

	raw, err := json.Marshal(FromResult(result))
	if err != nil {
		t.Fatalf("marshal scan result: %v", err)
	}
	for _, key := range []string{
		`"success":true`,
		`"image_id":7`,
		`"matched_asset_id":11`,
		`"similarity_score":0.9`,
		`"status":"pending"`,
		`"corpus: disabled"`,
	} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("payload missing %s: %s", key, raw)
		}
	}
}

func TestFromResultNilHasEmptyMatches(t *testing.T) {
	raw, err := json.Marshal(FromResult(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"matches":[]`) {
		t.Fatalf("expected empty matches array, got %s", raw)
	}
}

func TestFromStatusSummarySortsStageHealth(t *testing.T) {
	summary := workflow.StatusSummary{
		Running:  true,
		RunStats: map[catalog.Status]int{catalog.StatusPending: 2},
		StageHealth: map[string]stage.Health{
			"scorer":        {Name: "scorer", Ready: true},
			"fingerprinter": {Name: "fingerprinter", Ready: false, Detail: "model missing"},
		},
	}

	wf := FromStatusSummary(summary)
	if !wf.Running || wf.RunStats["pending"] != 2 {
		t.Fatalf("summary = %+v", wf)
	}
	if len(wf.StageHealth) != 2 || wf.StageHealth[0].Name != "fingerprinter" {
		t.Fatalf("stage health = %+v, want fingerprinter first", wf.StageHealth)
	}
	if wf.StageHealth[0].Ready || wf.StageHealth[0].Detail != "model missing" {
		t.Fatalf("fingerprinter health = %+v", wf.StageHealth[0])
	}
}

func TestFromNotificationReadFlag(t *testing.T) {
	runID := int64(3)
	unread := FromNotification(&catalog.Notification{ID: 1, Owner: "alice", EventType: "matches_found", RunID: &runID})
	if unread.Read || unread.RunID != 3 || unread.Owner != "alice" {
		t.Fatalf("unread dto = %+v", unread)
	}

	readAt := time.Now()
	read := FromNotification(&catalog.Notification{ID: 2, EventType: "matches_found", ReadAt: &readAt})
	if !read.Read {
		t.Fatalf("read dto = %+v", read)
	}
}
