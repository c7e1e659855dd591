package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UsageDay formats a timestamp as the UTC day key used for provider budgets.
func UsageDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ReserveProviderUnit atomically consumes one unit of a provider's daily
// query budget. It returns false when the budget for the day is exhausted.
func (s *Store) ReserveProviderUnit(ctx context.Context, provider, day string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	reserve := func() (bool, error) {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE provider_usage SET used = used + 1 WHERE provider = ? AND day = ? AND used < ?`,
			provider,
			day,
			limit,
		)
		if err != nil {
			return false, fmt.Errorf("reserve provider unit: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("rows affected: %w", err)
		}
		return affected > 0, nil
	}

	ok, err := reserve()
	if err != nil || ok {
		return ok, err
	}

	// No row yet for this day, or the budget is spent. Seed the row and
	// retry once; a second miss means exhaustion.
	if _, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO provider_usage (provider, day, used) VALUES (?, ?, 0)`,
		provider,
		day,
	); err != nil {
		return false, fmt.Errorf("seed provider usage: %w", err)
	}
	return reserve()
}

// ProviderUsage reports the units consumed by a provider on a given day.
func (s *Store) ProviderUsage(ctx context.Context, provider, day string) (int, error) {
	var used int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT used FROM provider_usage WHERE provider = ? AND day = ?`,
		provider,
		day,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("provider usage: %w", err)
	}
	return used, nil
}
