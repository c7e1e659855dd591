package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertMatchIfAbsent records a match for a (source, matched) pair. When
// the pair already exists the stored row is returned unchanged and the
// boolean is false; a collision is an idempotent success, never an error.
func (s *Store) InsertMatchIfAbsent(ctx context.Context, match *Match) (*Match, bool, error) {
	if match == nil {
		return nil, false, errors.New("match is nil")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	status := match.Status
	if status == "" {
		status = MatchPending
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO matches (
            source_asset_id, matched_asset_id, run_id, score, basis, status,
            candidate_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		match.SourceAssetID,
		match.MatchedAssetID,
		nullableInt64(match.RunID),
		match.Score,
		match.Basis,
		string(status),
		nullableString(match.CandidateJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert match: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	stored, err := s.FindMatchByPair(ctx, match.SourceAssetID, match.MatchedAssetID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, errors.New("match vanished after insert")
	}
	return stored, affected > 0, nil
}

// FindMatchByPair returns the match for a (source, matched) pair, if any.
func (s *Store) FindMatchByPair(ctx context.Context, sourceAssetID, matchedAssetID int64) (*Match, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+matchColumns+` FROM matches WHERE source_asset_id = ? AND matched_asset_id = ? LIMIT 1`,
		sourceAssetID,
		matchedAssetID,
	)
	match, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find match by pair: %w", err)
	}
	return match, nil
}

// GetMatch fetches a match by identifier.
func (s *Store) GetMatch(ctx context.Context, id int64) (*Match, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	match, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	return match, nil
}

// ListMatches returns matches filtered by status set (or all matches when
// no status is provided), newest first.
func (s *Store) ListMatches(ctx context.Context, statuses ...MatchStatus) ([]*Match, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + matchColumns + ` FROM matches`
	orderClause := ` ORDER BY created_at DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = string(status)
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []*Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

// MatchesForRun returns matches recorded by a specific run.
func (s *Store) MatchesForRun(ctx context.Context, runID int64) ([]*Match, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+matchColumns+` FROM matches WHERE run_id = ? ORDER BY score DESC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("matches for run: %w", err)
	}
	defer rows.Close()

	var matches []*Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

// MatchesForAsset returns matches against a source asset, newest first.
func (s *Store) MatchesForAsset(ctx context.Context, sourceAssetID int64) ([]*Match, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+matchColumns+` FROM matches WHERE source_asset_id = ? ORDER BY created_at DESC`,
		sourceAssetID,
	)
	if err != nil {
		return nil, fmt.Errorf("matches for asset: %w", err)
	}
	defer rows.Close()

	var matches []*Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

// TransitionMatch moves a match from one review state to another with an
// optimistic update. The boolean reports whether this call performed the
// transition; false means the row was no longer in the expected state.
func (s *Store) TransitionMatch(ctx context.Context, id int64, from, to MatchStatus, reviewedBy string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE matches
         SET status = ?, reviewed_at = ?, reviewed_by = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(to),
		now,
		nullableString(reviewedBy),
		now,
		id,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition match: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
