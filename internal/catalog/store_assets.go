package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnsureSourceAsset inserts a source asset, or returns the existing row
// when the owner already protects identical bytes. The boolean reports
// whether a new row was created.
func (s *Store) EnsureSourceAsset(ctx context.Context, asset *SourceAsset) (*SourceAsset, bool, error) {
	if asset == nil {
		return nil, false, errors.New("asset is nil")
	}
	if asset.Owner == "" || asset.SHA256 == "" {
		return nil, false, errors.New("owner and sha256 are required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO source_assets (
            owner, storage_key, original_filename, content_type, sha256,
            phash, embedding_json, caption, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		asset.Owner,
		asset.StorageKey,
		nullableString(asset.OriginalFilename),
		asset.ContentType,
		asset.SHA256,
		nullableString(asset.PHash),
		nullableString(asset.EmbeddingJSON),
		nullableString(asset.Caption),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert source asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	existing, err := s.FindSourceAssetByHash(ctx, asset.Owner, asset.SHA256)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.New("source asset vanished after insert")
	}
	return existing, affected > 0, nil
}

// GetSourceAsset fetches a source asset by identifier.
func (s *Store) GetSourceAsset(ctx context.Context, id int64) (*SourceAsset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceAssetColumns+` FROM source_assets WHERE id = ?`, id)
	asset, err := scanSourceAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source asset: %w", err)
	}
	return asset, nil
}

// FindSourceAssetByHash returns the asset an owner protects with the given
// content hash, if any.
func (s *Store) FindSourceAssetByHash(ctx context.Context, owner, sha256Hex string) (*SourceAsset, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+sourceAssetColumns+` FROM source_assets WHERE owner = ? AND sha256 = ? LIMIT 1`,
		owner,
		sha256Hex,
	)
	asset, err := scanSourceAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find source asset by hash: %w", err)
	}
	return asset, nil
}

// UpdateSourceAsset persists fingerprint fields computed after insert.
func (s *Store) UpdateSourceAsset(ctx context.Context, asset *SourceAsset) error {
	if asset == nil {
		return errors.New("asset is nil")
	}
	asset.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE source_assets
         SET storage_key = ?, original_filename = ?, content_type = ?,
             phash = ?, embedding_json = ?, caption = ?, updated_at = ?
         WHERE id = ?`,
		asset.StorageKey,
		nullableString(asset.OriginalFilename),
		asset.ContentType,
		nullableString(asset.PHash),
		nullableString(asset.EmbeddingJSON),
		nullableString(asset.Caption),
		asset.UpdatedAt.Format(time.RFC3339Nano),
		asset.ID,
	); err != nil {
		return fmt.Errorf("update source asset: %w", err)
	}
	return nil
}

// ListSourceAssets returns assets, optionally restricted to one owner.
func (s *Store) ListSourceAssets(ctx context.Context, owner string) ([]*SourceAsset, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if owner == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+sourceAssetColumns+` FROM source_assets ORDER BY created_at`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+sourceAssetColumns+` FROM source_assets WHERE owner = ? ORDER BY created_at`, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("list source assets: %w", err)
	}
	defer rows.Close()

	var assets []*SourceAsset
	for rows.Next() {
		asset, err := scanSourceAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// FingerprintedAssets returns assets carrying at least one fingerprint
// signal, excluding the given asset. The corpus candidate source scans
// these rows.
func (s *Store) FingerprintedAssets(ctx context.Context, excludeID int64) ([]*SourceAsset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+sourceAssetColumns+` FROM source_assets
         WHERE id != ? AND (phash IS NOT NULL OR embedding_json IS NOT NULL)
         ORDER BY id`,
		excludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query fingerprinted assets: %w", err)
	}
	defer rows.Close()

	var assets []*SourceAsset
	for rows.Next() {
		asset, err := scanSourceAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// EnsureMatchedAsset inserts a matched asset, or returns the existing row
// for the same external URL or internal asset reference.
func (s *Store) EnsureMatchedAsset(ctx context.Context, asset *MatchedAsset) (*MatchedAsset, error) {
	if asset == nil {
		return nil, errors.New("asset is nil")
	}
	switch asset.Kind {
	case AssetExternal:
		if asset.URL == "" {
			return nil, errors.New("external matched asset requires a url")
		}
	case AssetInternal:
		if asset.SourceAssetID == nil {
			return nil, errors.New("internal matched asset requires a source asset id")
		}
	default:
		return nil, fmt.Errorf("unknown asset kind %q", asset.Kind)
	}

	now := time.Now().UTC()
	if _, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO matched_assets (
            kind, url, source_asset_id, provider, title, source_domain, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(asset.Kind),
		nullableString(asset.URL),
		nullableInt64(asset.SourceAssetID),
		nullableString(asset.Provider),
		nullableString(asset.Title),
		nullableString(asset.SourceDomain),
		now.Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("insert matched asset: %w", err)
	}

	var row *sql.Row
	if asset.Kind == AssetExternal {
		row = s.db.QueryRowContext(
			ctx,
			`SELECT `+matchedAssetColumns+` FROM matched_assets WHERE kind = ? AND url = ? LIMIT 1`,
			string(AssetExternal),
			asset.URL,
		)
	} else {
		row = s.db.QueryRowContext(
			ctx,
			`SELECT `+matchedAssetColumns+` FROM matched_assets WHERE kind = ? AND source_asset_id = ? LIMIT 1`,
			string(AssetInternal),
			*asset.SourceAssetID,
		)
	}
	found, err := scanMatchedAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("matched asset vanished after insert")
	}
	if err != nil {
		return nil, fmt.Errorf("find matched asset: %w", err)
	}
	return found, nil
}

// GetMatchedAsset fetches a matched asset by identifier.
func (s *Store) GetMatchedAsset(ctx context.Context, id int64) (*MatchedAsset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+matchedAssetColumns+` FROM matched_assets WHERE id = ?`, id)
	asset, err := scanMatchedAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get matched asset: %w", err)
	}
	return asset, nil
}
