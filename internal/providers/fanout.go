package providers

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"pixguard/internal/logging"
)

const defaultSourceTimeout = 30 * time.Second

// Fanout queries every configured source concurrently and unions the
// results. A source failing, timing out, or exhausting its budget never
// aborts the others.
type Fanout struct {
	sources []Source
	timeout time.Duration
	logger  *slog.Logger
}

// NewFanout builds a fanout over the given sources. timeout bounds each
// source independently; zero selects a conservative default.
func NewFanout(logger *slog.Logger, timeout time.Duration, sources ...Source) *Fanout {
	if logger == nil {
		logger = logging.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	return &Fanout{
		sources: sources,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "providers"),
	}
}

type sourceResult struct {
	name       string
	candidates []Candidate
	err        error
}

// Collect runs all sources and returns the union of their candidates plus a
// failure record per source that did not deliver. An empty union with no
// error is a valid outcome. The returned error is reserved for caller
// cancellation.
func (f *Fanout) Collect(ctx context.Context, query Query) ([]Candidate, []Failure, error) {
	if len(f.sources) == 0 {
		return nil, nil, nil
	}

	results := make(chan sourceResult, len(f.sources))
	var wg sync.WaitGroup
	for _, source := range f.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			sourceCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			candidates, err := src.Search(sourceCtx, query)
			results <- sourceResult{name: src.Name(), candidates: candidates, err: err}
		}(source)
	}
	wg.Wait()
	close(results)

	var (
		candidates []Candidate
		failures   []Failure
	)
	for result := range results {
		if result.err != nil {
			f.logger.Warn("candidate source failed",
				logging.String(logging.FieldProvider, result.name),
				logging.Error(result.err))
			failures = append(failures, Failure{Source: result.name, Reason: result.err.Error()})
			continue
		}
		for _, candidate := range result.candidates {
			if !candidate.Resolvable() {
				f.logger.Debug("dropping unresolvable candidate",
					logging.String(logging.FieldProvider, result.name),
					logging.String("title", candidate.Title))
				continue
			}
			candidates = append(candidates, candidate)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, failures, err
	}

	// Deterministic union order regardless of goroutine completion order.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Provider != candidates[j].Provider {
			return candidates[i].Provider < candidates[j].Provider
		}
		if candidates[i].Position != candidates[j].Position {
			return candidates[i].Position < candidates[j].Position
		}
		return candidates[i].TargetURL() < candidates[j].TargetURL()
	})
	sort.SliceStable(failures, func(i, j int) bool {
		return failures[i].Source < failures[j].Source
	})

	if query.Limit > 0 && len(candidates) > query.Limit {
		candidates = candidates[:query.Limit]
	}
	return candidates, failures, nil
}
