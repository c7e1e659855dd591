package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnsureDossier records a dossier for a confirmed match. The match_id
// uniqueness constraint makes repeated confirms a no-op: the stored row is
// returned and the boolean reports whether this call created it.
func (s *Store) EnsureDossier(ctx context.Context, dossier *Dossier) (*Dossier, bool, error) {
	if dossier == nil {
		return nil, false, errors.New("dossier is nil")
	}
	if dossier.MatchID == 0 {
		return nil, false, errors.New("dossier requires a match id")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	status := dossier.Status
	if status == "" {
		status = DeliveryPending
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO dossiers (
            match_id, group_id, status, subject, body_text, snapshot_json,
            attempts, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dossier.MatchID,
		dossier.GroupID,
		string(status),
		dossier.Subject,
		dossier.BodyText,
		nullableString(dossier.SnapshotJSON),
		dossier.Attempts,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert dossier: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	stored, err := s.FindDossierByMatch(ctx, dossier.MatchID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, errors.New("dossier vanished after insert")
	}
	return stored, affected > 0, nil
}

// GetDossier fetches a dossier by identifier.
func (s *Store) GetDossier(ctx context.Context, id int64) (*Dossier, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dossierColumns+` FROM dossiers WHERE id = ?`, id)
	dossier, err := scanDossier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dossier: %w", err)
	}
	return dossier, nil
}

// FindDossierByMatch returns the dossier for a match, if any.
func (s *Store) FindDossierByMatch(ctx context.Context, matchID int64) (*Dossier, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dossierColumns+` FROM dossiers WHERE match_id = ? LIMIT 1`, matchID)
	dossier, err := scanDossier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find dossier by match: %w", err)
	}
	return dossier, nil
}

// ListDossiers returns dossiers filtered by delivery status set, newest first.
func (s *Store) ListDossiers(ctx context.Context, statuses ...DeliveryStatus) ([]*Dossier, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + dossierColumns + ` FROM dossiers`
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
		return nil, fmt.Errorf("list dossiers: %w", err)
	}
	defer rows.Close()

	var dossiers []*Dossier
	for rows.Next() {
		dossier, err := scanDossier(rows)
		if err != nil {
			return nil, err
		}
		dossiers = append(dossiers, dossier)
	}
	return dossiers, rows.Err()
}

// NextDeliverableDossier returns the oldest dossier still owed a delivery:
// pending, or failed with attempts remaining.
func (s *Store) NextDeliverableDossier(ctx context.Context, maxAttempts int) (*Dossier, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+dossierColumns+` FROM dossiers
         WHERE status = ? OR (status = ? AND attempts < ?)
         ORDER BY created_at LIMIT 1`,
		string(DeliveryPending),
		string(DeliveryFailed),
		maxAttempts,
	)
	dossier, err := scanDossier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next deliverable dossier: %w", err)
	}
	return dossier, nil
}

// ClaimDossier moves a dossier into the sent state and increments its
// attempt counter, but only when it is still in the expected state. The
// boolean reports whether this worker won the claim.
func (s *Store) ClaimDossier(ctx context.Context, id int64, from DeliveryStatus) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE dossiers
         SET status = ?, attempts = attempts + 1, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(DeliverySent),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("claim dossier: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkDossierDelivered finalizes a successful delivery.
func (s *Store) MarkDossierDelivered(ctx context.Context, id int64, sentTo string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE dossiers
         SET status = ?, sent_to = ?, sent_at = ?, last_error = NULL, updated_at = ?
         WHERE id = ?`,
		string(DeliveryDelivered),
		nullableString(sentTo),
		now,
		now,
		id,
	); err != nil {
		return fmt.Errorf("mark dossier delivered: %w", err)
	}
	return nil
}

// MarkDossierFailed records a failed delivery attempt outcome.
func (s *Store) MarkDossierFailed(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE dossiers
         SET status = ?, last_error = ?, updated_at = ?
         WHERE id = ?`,
		string(DeliveryFailed),
		nullableString(message),
		now,
		id,
	); err != nil {
		return fmt.Errorf("mark dossier failed: %w", err)
	}
	return nil
}

// RecordDeliveryAttempt appends a per-attempt log row for a dossier.
func (s *Store) RecordDeliveryAttempt(ctx context.Context, dossierID int64, attempt int, outcome DeliveryStatus, message string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO delivery_attempts (dossier_id, attempt, outcome, error_message, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		dossierID,
		attempt,
		string(outcome),
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("record delivery attempt: %w", err)
	}
	return nil
}

// DeliveryAttemptsForDossier returns the attempt log for a dossier in order.
func (s *Store) DeliveryAttemptsForDossier(ctx context.Context, dossierID int64) ([]*DeliveryAttempt, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts WHERE dossier_id = ? ORDER BY id`,
		dossierID,
	)
	if err != nil {
		return nil, fmt.Errorf("delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*DeliveryAttempt
	for rows.Next() {
		attempt, err := scanDeliveryAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// DossierGroupForAsset returns the group id shared by earlier dossiers for
// the same source asset, or empty when this is the asset's first dossier.
func (s *Store) DossierGroupForAsset(ctx context.Context, sourceAssetID int64) (string, error) {
	var groupID string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT d.group_id FROM dossiers d
         JOIN matches m ON m.id = d.match_id
         WHERE m.source_asset_id = ?
         ORDER BY d.id LIMIT 1`,
		sourceAssetID,
	).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("dossier group for asset: %w", err)
	}
	return groupID, nil
}

// CountDossiersForMatch reports how many dossier rows exist for a match.
// Used to assert the at-most-once dossier invariant.
func (s *Store) CountDossiersForMatch(ctx context.Context, matchID int64) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dossiers WHERE match_id = ?`, matchID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count dossiers: %w", err)
	}
	return count, nil
}
