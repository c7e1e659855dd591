package api

import (
	"context"

	"pixguard/internal/catalog"
)

// RunReader abstracts catalog persistence interactions needed for API queries.
type RunReader interface {
	ListRuns(ctx context.Context, statuses ...catalog.Status) ([]*catalog.Run, error)
	Stats(ctx context.Context) (map[catalog.Status]int, error)
	GetRun(ctx context.Context, id int64) (*catalog.Run, error)
}

// RunService exposes read-only run operations returning API DTOs.
type RunService struct {
	store RunReader
}

// NewRunService constructs a RunService around the provided reader.
func NewRunService(store RunReader) *RunService {
	if store == nil {
		return nil
	}
	return &RunService{store: store}
}

// List returns runs filtered by status.
func (s *RunService) List(ctx context.Context, statuses ...catalog.Status) ([]Run, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	runs, err := s.store.ListRuns(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromRuns(runs), nil
}

// Stats returns run summary counts keyed by status string.
func (s *RunService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeRunStats(stats), nil
}

// Describe fetches a single run.
func (s *RunService) Describe(ctx context.Context, id int64) (*Run, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	run, err := s.store.GetRun(ctx, id)
	if err != nil || run == nil {
		return nil, err
	}
	dto := FromRun(run)
	return &dto, nil
}
