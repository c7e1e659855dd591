package api

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"pixguard/internal/catalog"
	"pixguard/internal/pipeline"
	"pixguard/internal/preflight"
	"pixguard/internal/providers"
	"pixguard/internal/scoring"
	"pixguard/internal/stage"
	"pixguard/internal/workflow"
)

// FromRun converts a run record to its API representation.
func FromRun(run *catalog.Run) Run {
	if run == nil {
		return Run{}
	}

	dto := Run{
		ID:               run.ID,
		Owner:            run.Owner,
		OriginalFilename: run.OriginalFilename,
		Status:           string(run.Status),
		ProcessingLane:   string(catalog.LaneForRun(run)),
		Progress: RunProgress{
			Stage:   run.ProgressStage,
			Percent: run.ProgressPercent,
			Message: run.ProgressMessage,
		},
		ErrorMessage:     run.ErrorMessage,
		MatchCount:       run.MatchCount,
		ProviderFailures: FailureStrings(stage.ParseFailures(run.ProviderFailuresJSON)),
		NeedsReview:      run.NeedsReview,
		ReviewReason:     run.ReviewReason,
	}
	if run.SourceAssetID != nil {
		dto.SourceAssetID = *run.SourceAssetID
	}
	dto.CreatedAt = FormatTime(run.CreatedAt)
	dto.UpdatedAt = FormatTime(run.UpdatedAt)
	return dto
}

// FromRuns converts a slice of run records into API DTOs.
func FromRuns(runs []*catalog.Run) []Run {
	if len(runs) == 0 {
		return nil
	}
	out := make([]Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

// FromAsset converts a protected asset record to its API representation.
func FromAsset(asset *catalog.SourceAsset) Asset {
	if asset == nil {
		return Asset{}
	}
	return Asset{
		ID:               asset.ID,
		Owner:            asset.Owner,
		OriginalFilename: asset.OriginalFilename,
		ContentType:      asset.ContentType,
		SHA256:           asset.SHA256,
		PHash:            asset.PHash,
		Fingerprinted:    asset.Fingerprinted(),
		Captioned:        asset.Caption != "",
		CreatedAt:        FormatTime(asset.CreatedAt),
	}
}

// FromAssets converts a slice of asset records into API DTOs.
func FromAssets(assets []*catalog.SourceAsset) []Asset {
	if len(assets) == 0 {
		return nil
	}
	out := make([]Asset, 0, len(assets))
	for _, asset := range assets {
		out = append(out, FromAsset(asset))
	}
	return out
}

// FromMatch converts a match record to its API representation. Target facts
// come from the candidate payload stored alongside the score.
func FromMatch(match *catalog.Match) Match {
	if match == nil {
		return Match{}
	}
	facts := parseCandidateFacts(match.CandidateJSON)
	dto := Match{
		ID:              match.ID,
		SourceAssetID:   match.SourceAssetID,
		MatchedAssetID:  match.MatchedAssetID,
		SimilarityScore: match.Score,
		Basis:           match.Basis,
		Status:          string(match.Status),
		TargetURL:       facts.targetURL,
		PageURL:         facts.pageURL,
		Provider:        facts.provider,
		SourceDomain:    facts.domain,
		Title:           facts.title,
		InternalAssetID: facts.internalAssetID,
		ReviewedBy:      match.ReviewedBy,
		CreatedAt:       FormatTime(match.CreatedAt),
	}
	if match.RunID != nil {
		dto.RunID = *match.RunID
	}
	if match.ReviewedAt != nil {
		dto.ReviewedAt = FormatTime(*match.ReviewedAt)
	}
	return dto
}

// FromMatches converts a slice of match records into API DTOs.
func FromMatches(matches []*catalog.Match) []Match {
	if len(matches) == 0 {
		return nil
	}
	out := make([]Match, 0, len(matches))
	for _, match := range matches {
		out = append(out, FromMatch(match))
	}
	return out
}

// SummaryFromMatch reduces a match record to the scan-result payload.
func SummaryFromMatch(match *catalog.Match) MatchSummary {
	if match == nil {
		return MatchSummary{}
	}
	return MatchSummary{
		ID:              match.ID,
		MatchedAssetID:  match.MatchedAssetID,
		SimilarityScore: match.Score,
		Status:          string(match.Status),
		CreatedAt:       FormatTime(match.CreatedAt),
	}
}

// FromResult converts a pipeline outcome into the scan-result payload.
func FromResult(result *pipeline.Result) ScanResult {
	if result == nil {
		return ScanResult{Matches: []MatchSummary{}}
	}
	out := ScanResult{
		Success:          result.Success,
		RunID:            result.RunID,
		ImageID:          result.SourceAssetID,
		Status:           string(result.Status),
		Matches:          make([]MatchSummary, 0, len(result.Matches)),
		ProviderFailures: FailureStrings(result.ProviderFailures),
		Error:            result.Error,
	}
	for _, match := range result.Matches {
		out.Matches = append(out.Matches, SummaryFromMatch(match))
	}
	return out
}

// FromDossier converts a dossier record to its API representation.
func FromDossier(dossier *catalog.Dossier) Dossier {
	if dossier == nil {
		return Dossier{}
	}
	dto := Dossier{
		ID:        dossier.ID,
		MatchID:   dossier.MatchID,
		GroupID:   dossier.GroupID,
		Status:    string(dossier.Status),
		Subject:   dossier.Subject,
		BodyText:  dossier.BodyText,
		Attempts:  dossier.Attempts,
		LastError: dossier.LastError,
		SentTo:    dossier.SentTo,
		CreatedAt: FormatTime(dossier.CreatedAt),
		UpdatedAt: FormatTime(dossier.UpdatedAt),
	}
	if dossier.SentAt != nil {
		dto.SentAt = FormatTime(*dossier.SentAt)
	}
	return dto
}

// FromDossiers converts a slice of dossier records into API DTOs.
func FromDossiers(dossiers []*catalog.Dossier) []Dossier {
	if len(dossiers) == 0 {
		return nil
	}
	out := make([]Dossier, 0, len(dossiers))
	for _, dossier := range dossiers {
		out = append(out, FromDossier(dossier))
	}
	return out
}

// FromDeliveryAttempt converts one delivery-history row.
func FromDeliveryAttempt(attempt *catalog.DeliveryAttempt) DeliveryAttempt {
	if attempt == nil {
		return DeliveryAttempt{}
	}
	return DeliveryAttempt{
		ID:           attempt.ID,
		DossierID:    attempt.DossierID,
		Attempt:      attempt.Attempt,
		Outcome:      string(attempt.Outcome),
		ErrorMessage: attempt.ErrorMessage,
		CreatedAt:    FormatTime(attempt.CreatedAt),
	}
}

// FromDeliveryAttempts converts a dossier's delivery history.
func FromDeliveryAttempts(attempts []*catalog.DeliveryAttempt) []DeliveryAttempt {
	if len(attempts) == 0 {
		return nil
	}
	out := make([]DeliveryAttempt, 0, len(attempts))
	for _, attempt := range attempts {
		out = append(out, FromDeliveryAttempt(attempt))
	}
	return out
}

// FromNotification converts a feed entry to its API representation.
func FromNotification(n *catalog.Notification) Notification {
	if n == nil {
		return Notification{}
	}
	dto := Notification{
		ID:        n.ID,
		Owner:     n.Owner,
		EventType: n.EventType,
		Title:     n.Title,
		Body:      n.Body,
		Read:      n.ReadAt != nil,
		CreatedAt: FormatTime(n.CreatedAt),
	}
	if n.RunID != nil {
		dto.RunID = *n.RunID
	}
	if n.MatchID != nil {
		dto.MatchID = *n.MatchID
	}
	return dto
}

// FromNotifications converts a slice of feed entries into API DTOs.
func FromNotifications(notifications []*catalog.Notification) []Notification {
	if len(notifications) == 0 {
		return nil
	}
	out := make([]Notification, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, FromNotification(n))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:     summary.Running,
		RunStats:    MergeRunStats(summary.RunStats),
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
	if summary.LastError != "" {
		wf.LastError = summary.LastError
	}
	if summary.LastRun != nil {
		last := FromRun(summary.LastRun)
		wf.LastRun = &last
	}
	return wf
}

// FromChecks converts preflight results for status payloads.
func FromChecks(results []preflight.Result) []CheckResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

// MergeRunStats produces a string-keyed representation of run stats.
func MergeRunStats(stats map[catalog.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// StageHealthSlice converts a stage health map into a deterministic slice.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FailureStrings flattens provider failures into "source: reason" lines.
func FailureStrings(failures []providers.Failure) []string {
	if len(failures) == 0 {
		return nil
	}
	out := make([]string, 0, len(failures))
	for _, f := range failures {
		out = append(out, fmt.Sprintf("%s: %s", f.Source, f.Reason))
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// candidateFacts holds the display fields lifted from a match's stored
// candidate payload with a single JSON parse.
type candidateFacts struct {
	targetURL       string
	pageURL         string
	provider        string
	domain          string
	title           string
	internalAssetID int64
}

func parseCandidateFacts(candidateJSON string) candidateFacts {
	if candidateJSON == "" {
		return candidateFacts{}
	}
	var hit scoring.Scored
	if err := json.Unmarshal([]byte(candidateJSON), &hit); err != nil {
		return candidateFacts{}
	}
	cand := hit.Candidate
	return candidateFacts{
		targetURL:       cand.TargetURL(),
		pageURL:         cand.PageURL,
		provider:        cand.Provider,
		domain:          cand.SourceDomain,
		title:           cand.Title,
		internalAssetID: cand.InternalAssetID,
	}
}
