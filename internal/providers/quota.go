package providers

import (
	"context"
	"fmt"
	"time"

	"pixguard/internal/catalog"
	"pixguard/internal/services"
)

// quotaSource gates another source behind a per-day query budget recorded in
// the catalog. Exhaustion surfaces as a provider failure so the fan-out
// treats it like any other source outage.
type quotaSource struct {
	inner Source
	store *catalog.Store
	limit int
	now   func() time.Time
}

// WithQuota wraps source with a daily query budget. A non-positive limit
// disables the gate entirely.
func WithQuota(inner Source, store *catalog.Store, dailyLimit int) Source {
	if dailyLimit <= 0 {
		return inner
	}
	return &quotaSource{inner: inner, store: store, limit: dailyLimit, now: time.Now}
}

func (q *quotaSource) Name() string { return q.inner.Name() }

func (q *quotaSource) Search(ctx context.Context, query Query) ([]Candidate, error) {
	day := catalog.UsageDay(q.now())
	ok, err := q.store.ReserveProviderUnit(ctx, q.inner.Name(), day, q.limit)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "fetching", q.inner.Name(), "reserve query budget", err)
	}
	if !ok {
		return nil, services.Wrap(
			services.ErrProvider,
			"fetching",
			q.inner.Name(),
			fmt.Sprintf("daily query budget of %d exhausted", q.limit),
			nil,
		)
	}
	return q.inner.Search(ctx, query)
}
