package dossier

import (
	"encoding/json"
	"time"
)

// Snapshot is the denormalized infringement record frozen into a dossier at
// confirmation time. The report quotes these fields, never the live catalog
// or the live page, so later changes cannot alter what was sent.
type Snapshot struct {
	Owner            string `json:"owner"`
	SourceAssetID    int64  `json:"source_asset_id"`
	OriginalFilename string `json:"original_filename,omitempty"`
	SourceSHA256     string `json:"source_sha256,omitempty"`
	StorageKey       string `json:"storage_key,omitempty"`

	MatchID        int64   `json:"match_id"`
	MatchedAssetID int64   `json:"matched_asset_id"`
	TargetURL      string  `json:"target_url,omitempty"`
	PageURL        string  `json:"page_url,omitempty"`
	ImageURL       string  `json:"image_url,omitempty"`
	Provider       string  `json:"provider,omitempty"`
	Title          string  `json:"title,omitempty"`
	SourceDomain   string  `json:"source_domain,omitempty"`
	Score          float64 `json:"score"`
	Basis          string  `json:"basis,omitempty"`
	ForSale        string  `json:"for_sale,omitempty"`
	Price          string  `json:"price,omitempty"`
	Currency       string  `json:"currency,omitempty"`

	PageTitle       string `json:"page_title,omitempty"`
	PageDescription string `json:"page_description,omitempty"`
	PageSiteName    string `json:"page_site_name,omitempty"`

	ConfirmedAt time.Time `json:"confirmed_at"`
}

// ParseSnapshot decodes a stored snapshot payload. An empty payload yields
// a zero snapshot rather than an error so old rows keep rendering.
func ParseSnapshot(raw string) (Snapshot, error) {
	var snapshot Snapshot
	if raw == "" {
		return snapshot, nil
	}
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}
