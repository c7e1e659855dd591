package catalog

import (
	"database/sql"
	"errors"
	"time"
)

const runColumns = "id, owner, original_filename, staged_path, source_asset_id, status, error_message, progress_stage, progress_percent, progress_message, fingerprint_json, candidates_json, scored_json, match_count, provider_failures_json, needs_review, review_reason, last_heartbeat, created_at, updated_at"

const sourceAssetColumns = "id, owner, storage_key, original_filename, content_type, sha256, phash, embedding_json, caption, created_at, updated_at"

const matchedAssetColumns = "id, kind, url, source_asset_id, provider, title, source_domain, created_at"

const matchColumns = "id, source_asset_id, matched_asset_id, run_id, score, basis, status, candidate_json, reviewed_at, reviewed_by, created_at, updated_at"

const dossierColumns = "id, match_id, group_id, status, subject, body_text, snapshot_json, attempts, last_error, sent_to, sent_at, created_at, updated_at"

const attemptColumns = "id, dossier_id, attempt, outcome, error_message, created_at"

const notificationColumns = "id, owner, event_type, title, body, run_id, match_id, read_at, created_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanRun(scanner rowScanner) (*Run, error) {
	var (
		id               int64
		owner            string
		originalFilename sql.NullString
		stagedPath       sql.NullString
		sourceAssetID    sql.NullInt64
		statusStr        string
		errorMessage     sql.NullString
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		fingerprintJSON  sql.NullString
		candidatesJSON   sql.NullString
		scoredJSON       sql.NullString
		matchCount       sql.NullInt64
		providerFailures sql.NullString
		needsReview      sql.NullInt64
		reviewReason     sql.NullString
		lastHeartbeatRaw sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&owner,
		&originalFilename,
		&stagedPath,
		&sourceAssetID,
		&statusStr,
		&errorMessage,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&fingerprintJSON,
		&candidatesJSON,
		&scoredJSON,
		&matchCount,
		&providerFailures,
		&needsReview,
		&reviewReason,
		&lastHeartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:                   id,
		Owner:                owner,
		OriginalFilename:     originalFilename.String,
		StagedPath:           stagedPath.String,
		Status:               Status(statusStr),
		ErrorMessage:         errorMessage.String,
		ProgressStage:        progressStage.String,
		ProgressPercent:      progressPercent.Float64,
		ProgressMessage:      progressMessage.String,
		FingerprintJSON:      fingerprintJSON.String,
		CandidatesJSON:       candidatesJSON.String,
		ScoredJSON:           scoredJSON.String,
		MatchCount:           matchCount.Int64,
		ProviderFailuresJSON: providerFailures.String,
		ReviewReason:         reviewReason.String,
	}
	if sourceAssetID.Valid {
		v := sourceAssetID.Int64
		run.SourceAssetID = &v
	}
	if needsReview.Valid {
		run.NeedsReview = needsReview.Int64 != 0
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		run.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		run.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			run.LastHeartbeat = &heartbeat
		}
	}
	return run, nil
}

func scanSourceAsset(scanner rowScanner) (*SourceAsset, error) {
	var (
		id               int64
		owner            string
		storageKey       string
		originalFilename sql.NullString
		contentType      string
		sha256Hex        string
		phash            sql.NullString
		embeddingJSON    sql.NullString
		caption          sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&owner,
		&storageKey,
		&originalFilename,
		&contentType,
		&sha256Hex,
		&phash,
		&embeddingJSON,
		&caption,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	asset := &SourceAsset{
		ID:               id,
		Owner:            owner,
		StorageKey:       storageKey,
		OriginalFilename: originalFilename.String,
		ContentType:      contentType,
		SHA256:           sha256Hex,
		PHash:            phash.String,
		EmbeddingJSON:    embeddingJSON.String,
		Caption:          caption.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		asset.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		asset.UpdatedAt = updated
	}
	return asset, nil
}

func scanMatchedAsset(scanner rowScanner) (*MatchedAsset, error) {
	var (
		id            int64
		kind          string
		url           sql.NullString
		sourceAssetID sql.NullInt64
		provider      sql.NullString
		title         sql.NullString
		sourceDomain  sql.NullString
		createdRaw    sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&kind,
		&url,
		&sourceAssetID,
		&provider,
		&title,
		&sourceDomain,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	asset := &MatchedAsset{
		ID:           id,
		Kind:         AssetKind(kind),
		URL:          url.String,
		Provider:     provider.String,
		Title:        title.String,
		SourceDomain: sourceDomain.String,
	}
	if sourceAssetID.Valid {
		v := sourceAssetID.Int64
		asset.SourceAssetID = &v
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		asset.CreatedAt = created
	}
	return asset, nil
}

func scanMatch(scanner rowScanner) (*Match, error) {
	var (
		id             int64
		sourceAssetID  int64
		matchedAssetID int64
		runID          sql.NullInt64
		score          float64
		basis          string
		statusStr      string
		candidateJSON  sql.NullString
		reviewedRaw    sql.NullString
		reviewedBy     sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&sourceAssetID,
		&matchedAssetID,
		&runID,
		&score,
		&basis,
		&statusStr,
		&candidateJSON,
		&reviewedRaw,
		&reviewedBy,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	match := &Match{
		ID:             id,
		SourceAssetID:  sourceAssetID,
		MatchedAssetID: matchedAssetID,
		Score:          score,
		Basis:          basis,
		Status:         MatchStatus(statusStr),
		CandidateJSON:  candidateJSON.String,
		ReviewedBy:     reviewedBy.String,
	}
	if runID.Valid {
		v := runID.Int64
		match.RunID = &v
	}
	if reviewedRaw.Valid {
		if reviewed, err := parseTimeString(reviewedRaw.String); err == nil {
			match.ReviewedAt = &reviewed
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		match.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		match.UpdatedAt = updated
	}
	return match, nil
}

func scanDossier(scanner rowScanner) (*Dossier, error) {
	var (
		id           int64
		matchID      int64
		groupID      string
		statusStr    string
		subject      string
		bodyText     string
		snapshotJSON sql.NullString
		attempts     sql.NullInt64
		lastError    sql.NullString
		sentTo       sql.NullString
		sentRaw      sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&matchID,
		&groupID,
		&statusStr,
		&subject,
		&bodyText,
		&snapshotJSON,
		&attempts,
		&lastError,
		&sentTo,
		&sentRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	dossier := &Dossier{
		ID:           id,
		MatchID:      matchID,
		GroupID:      groupID,
		Status:       DeliveryStatus(statusStr),
		Subject:      subject,
		BodyText:     bodyText,
		SnapshotJSON: snapshotJSON.String,
		Attempts:     int(attempts.Int64),
		LastError:    lastError.String,
		SentTo:       sentTo.String,
	}
	if sentRaw.Valid {
		if sent, err := parseTimeString(sentRaw.String); err == nil {
			dossier.SentAt = &sent
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		dossier.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		dossier.UpdatedAt = updated
	}
	return dossier, nil
}

func scanDeliveryAttempt(scanner rowScanner) (*DeliveryAttempt, error) {
	var (
		id           int64
		dossierID    int64
		attempt      int64
		outcome      string
		errorMessage sql.NullString
		createdRaw   sql.NullString
	)
	if err := scanner.Scan(&id, &dossierID, &attempt, &outcome, &errorMessage, &createdRaw); err != nil {
		return nil, err
	}
	record := &DeliveryAttempt{
		ID:           id,
		DossierID:    dossierID,
		Attempt:      int(attempt),
		Outcome:      DeliveryStatus(outcome),
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	return record, nil
}

func scanNotification(scanner rowScanner) (*Notification, error) {
	var (
		id         int64
		owner      string
		eventType  string
		title      string
		body       sql.NullString
		runID      sql.NullInt64
		matchID    sql.NullInt64
		readRaw    sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&id, &owner, &eventType, &title, &body, &runID, &matchID, &readRaw, &createdRaw); err != nil {
		return nil, err
	}
	notification := &Notification{
		ID:        id,
		Owner:     owner,
		EventType: eventType,
		Title:     title,
		Body:      body.String,
	}
	if runID.Valid {
		v := runID.Int64
		notification.RunID = &v
	}
	if matchID.Valid {
		v := matchID.Int64
		notification.MatchID = &v
	}
	if readRaw.Valid {
		if read, err := parseTimeString(readRaw.String); err == nil {
			notification.ReadAt = &read
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		notification.CreatedAt = created
	}
	return notification, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
