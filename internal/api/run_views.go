package api

import (
	"sort"
	"time"
)

// SortRunsNewestFirst orders runs by CreatedAt descending, breaking ties by
// ID descending. The store lists runs oldest-first for lane polling; display
// surfaces want the reverse.
func SortRunsNewestFirst(runs []Run) []Run {
	if len(runs) == 0 {
		return nil
	}
	sorted := make([]Run, len(runs))
	copy(sorted, runs)
	sort.Slice(sorted, func(i, j int) bool {
		ti := parseRunTime(sorted[i].CreatedAt)
		tj := parseRunTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})
	return sorted
}

func parseRunTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

// ParseRunTime exposes run timestamp parsing for consumers that need
// display formatting.
func ParseRunTime(value string) time.Time {
	return parseRunTime(value)
}
