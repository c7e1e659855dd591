package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Stats returns run counts grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Health summarizes run counts across key lifecycle buckets.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	summary := HealthSummary{}
	for status, count := range stats {
		summary.Total += count
		switch {
		case status == StatusPending:
			summary.Pending += count
		case status == StatusCompleted:
			summary.Completed += count
		case status == StatusFailed:
			summary.Failed += count
		case status == StatusReview:
			summary.Review += count
		case IsProcessingStatus(status):
			summary.Processing += count
		}
	}
	return summary, nil
}

var expectedRunColumns = []string{
	"id",
	"owner",
	"original_filename",
	"staged_path",
	"source_asset_id",
	"status",
	"error_message",
	"progress_stage",
	"progress_percent",
	"progress_message",
	"fingerprint_json",
	"candidates_json",
	"scored_json",
	"match_count",
	"provider_failures_json",
	"needs_review",
	"review_reason",
	"last_heartbeat",
	"created_at",
	"updated_at",
}

// CheckHealth inspects the catalog database file, schema, and integrity.
func (s *Store) CheckHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{DBPath: s.path}

	if info, err := os.Stat(s.path); err == nil && !info.IsDir() {
		health.DatabaseExists = true
	} else {
		health.Error = "database file missing"
		return health
	}

	pingCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		health.Error = fmt.Sprintf("ping database: %v", err)
		return health
	}
	health.DatabaseReadable = true

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err == nil {
		health.SchemaVersion = fmt.Sprintf("%d", version)
	}

	var tableCount int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='runs'",
	).Scan(&tableCount); err != nil {
		health.Error = fmt.Sprintf("check runs table: %v", err)
		return health
	}
	if tableCount == 0 {
		health.Error = "runs table missing"
		return health
	}
	health.TableExists = true

	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(runs)")
	if err != nil {
		health.Error = fmt.Sprintf("read table info: %v", err)
		return health
	}
	present := make(map[string]struct{})
	for rows.Next() {
		var (
			cid        int
			name       string
			columnType string
			notNull    int
			defaultVal any
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &columnType, &notNull, &defaultVal, &primaryKey); err != nil {
			_ = rows.Close()
			health.Error = fmt.Sprintf("scan table info: %v", err)
			return health
		}
		present[strings.ToLower(name)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		health.Error = fmt.Sprintf("iterate table info: %v", err)
		return health
	}
	_ = rows.Close()

	for _, column := range expectedRunColumns {
		if _, ok := present[column]; ok {
			health.ColumnsPresent = append(health.ColumnsPresent, column)
		} else {
			health.MissingColumns = append(health.MissingColumns, column)
		}
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&health.TotalRuns); err != nil {
		health.Error = fmt.Sprintf("count runs: %v", err)
		return health
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = fmt.Sprintf("integrity check: %v", err)
		return health
	}
	health.IntegrityCheck = integrity == "ok"
	if !health.IntegrityCheck {
		health.Error = fmt.Sprintf("integrity check reported: %s", integrity)
	}

	return health
}
