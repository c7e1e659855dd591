package pipeline

import (
	"context"

	"pixguard/internal/catalog"
	"pixguard/internal/providers"
	"pixguard/internal/services"
	"pixguard/internal/stage"
)

// Result is the caller-facing outcome of a scan run.
type Result struct {
	Success          bool                `json:"success"`
	RunID            int64               `json:"run_id"`
	Status           catalog.Status      `json:"status"`
	SourceAssetID    int64               `json:"source_asset_id,omitempty"`
	Matches          []*catalog.Match    `json:"matches"`
	ProviderFailures []providers.Failure `json:"provider_failures,omitempty"`
	Error            string              `json:"error,omitempty"`
}

// BuildResult assembles the outcome for a run. Matches are folded in across
// every run of the same asset so repeated scans report identical results.
func BuildResult(ctx context.Context, store *catalog.Store, run *catalog.Run) (*Result, error) {
	result := &Result{
		RunID:   run.ID,
		Status:  run.Status,
		Matches: []*catalog.Match{},
	}
	if run.SourceAssetID != nil {
		result.SourceAssetID = *run.SourceAssetID
		matches, err := store.MatchesForAsset(ctx, *run.SourceAssetID)
		if err != nil {
			return nil, services.Wrap(services.ErrPersistence, "result", "list matches", "", err)
		}
		if matches != nil {
			result.Matches = matches
		}
	}
	result.ProviderFailures = stage.ParseFailures(run.ProviderFailuresJSON)

	switch run.Status {
	case catalog.StatusCompleted:
		result.Success = true
	case catalog.StatusFailed, catalog.StatusReview:
		result.Error = run.ErrorMessage
		if result.Error == "" {
			result.Error = "scan failed"
		}
	}
	return result, nil
}
