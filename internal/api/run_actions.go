package api

import (
	"context"

	"pixguard/internal/catalog"
)

// RunActionService captures run operations needed by per-run retry and
// remove workflows.
type RunActionService interface {
	Describe(ctx context.Context, id int64) (*Run, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
	Remove(ctx context.Context, id int64) (bool, error)
}

type RetryRunOutcome string

const (
	RetryRunUpdated   RetryRunOutcome = "retried"
	RetryRunNotFound  RetryRunOutcome = "not_found"
	RetryRunNotFailed RetryRunOutcome = "not_failed"
)

type RetryRunResult struct {
	ID      int64           `json:"id"`
	Outcome RetryRunOutcome `json:"outcome"`
}

type RetryRunsResult struct {
	UpdatedCount int64            `json:"updated_count"`
	Runs         []RetryRunResult `json:"runs"`
}

type RemoveRunOutcome string

const (
	RemoveRunRemoved    RemoveRunOutcome = "removed"
	RemoveRunNotFound   RemoveRunOutcome = "not_found"
	RemoveRunProcessing RemoveRunOutcome = "still_processing"
)

type RemoveRunResult struct {
	ID      int64            `json:"id"`
	Outcome RemoveRunOutcome `json:"outcome"`
}

type RemoveRunsResult struct {
	RemovedCount int64             `json:"removed_count"`
	Runs         []RemoveRunResult `json:"runs"`
}

// RetryFailedRunsByID validates IDs and retries only failed runs, so each
// ID reports an individual outcome instead of a silent skip.
func RetryFailedRunsByID(ctx context.Context, service RunActionService, ids []int64) (RetryRunsResult, error) {
	result := RetryRunsResult{Runs: make([]RetryRunResult, 0, len(ids))}
	for _, id := range ids {
		run, err := service.Describe(ctx, id)
		if err != nil {
			return RetryRunsResult{}, err
		}
		if run == nil {
			result.Runs = append(result.Runs, RetryRunResult{ID: id, Outcome: RetryRunNotFound})
			continue
		}
		status, ok := catalog.ParseStatus(run.Status)
		if !ok || status != catalog.StatusFailed {
			result.Runs = append(result.Runs, RetryRunResult{ID: id, Outcome: RetryRunNotFailed})
			continue
		}
		updated, err := service.Retry(ctx, []int64{id})
		if err != nil {
			return RetryRunsResult{}, err
		}
		if updated > 0 {
			result.UpdatedCount += updated
			result.Runs = append(result.Runs, RetryRunResult{ID: id, Outcome: RetryRunUpdated})
			continue
		}
		result.Runs = append(result.Runs, RetryRunResult{ID: id, Outcome: RetryRunNotFailed})
	}
	return result, nil
}

// RemoveRunsByID removes runs one-by-one so each ID can report its outcome.
// Runs currently being processed by a lane are left alone.
func RemoveRunsByID(ctx context.Context, service RunActionService, ids []int64) (RemoveRunsResult, error) {
	result := RemoveRunsResult{Runs: make([]RemoveRunResult, 0, len(ids))}
	for _, id := range ids {
		run, err := service.Describe(ctx, id)
		if err != nil {
			return RemoveRunsResult{}, err
		}
		if run == nil {
			result.Runs = append(result.Runs, RemoveRunResult{ID: id, Outcome: RemoveRunNotFound})
			continue
		}
		if status, ok := catalog.ParseStatus(run.Status); ok && catalog.IsProcessingStatus(status) {
			result.Runs = append(result.Runs, RemoveRunResult{ID: id, Outcome: RemoveRunProcessing})
			continue
		}
		removed, err := service.Remove(ctx, id)
		if err != nil {
			return RemoveRunsResult{}, err
		}
		if removed {
			result.RemovedCount++
			result.Runs = append(result.Runs, RemoveRunResult{ID: id, Outcome: RemoveRunRemoved})
			continue
		}
		result.Runs = append(result.Runs, RemoveRunResult{ID: id, Outcome: RemoveRunNotFound})
	}
	return result, nil
}
