package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Run describes a scan run in a transport-friendly format.
type Run struct {
	ID               int64       `json:"id"`
	Owner            string      `json:"owner"`
	OriginalFilename string      `json:"original_filename,omitempty"`
	SourceAssetID    int64       `json:"source_asset_id,omitempty"`
	Status           string      `json:"status"`
	ProcessingLane   string      `json:"processing_lane"`
	Progress         RunProgress `json:"progress"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	MatchCount       int64       `json:"match_count"`
	ProviderFailures []string    `json:"provider_failures,omitempty"`
	NeedsReview      bool        `json:"needs_review"`
	ReviewReason     string      `json:"review_reason,omitempty"`
	CreatedAt        string      `json:"created_at,omitempty"`
	UpdatedAt        string      `json:"updated_at,omitempty"`
}

// RunProgress captures stage progress information for a run.
type RunProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Asset describes a protected source asset.
type Asset struct {
	ID               int64  `json:"id"`
	Owner            string `json:"owner"`
	OriginalFilename string `json:"original_filename,omitempty"`
	ContentType      string `json:"content_type,omitempty"`
	SHA256           string `json:"sha256"`
	PHash            string `json:"phash,omitempty"`
	Fingerprinted    bool   `json:"fingerprinted"`
	Captioned        bool   `json:"captioned"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// Match describes a recorded similarity hit including the target facts a
// reviewer needs to judge it.
type Match struct {
	ID              int64   `json:"id"`
	SourceAssetID   int64   `json:"source_asset_id"`
	MatchedAssetID  int64   `json:"matched_asset_id"`
	RunID           int64   `json:"run_id,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
	Basis           string  `json:"basis,omitempty"`
	Status          string  `json:"status"`
	TargetURL       string  `json:"target_url,omitempty"`
	PageURL         string  `json:"page_url,omitempty"`
	Provider        string  `json:"provider,omitempty"`
	SourceDomain    string  `json:"source_domain,omitempty"`
	Title           string  `json:"title,omitempty"`
	InternalAssetID int64   `json:"internal_asset_id,omitempty"`
	ReviewedAt      string  `json:"reviewed_at,omitempty"`
	ReviewedBy      string  `json:"reviewed_by,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// MatchSummary is the compact match payload embedded in scan results.
type MatchSummary struct {
	ID              int64   `json:"id"`
	MatchedAssetID  int64   `json:"matched_asset_id"`
	SimilarityScore float64 `json:"similarity_score"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// ScanResult is the caller-facing outcome of a scan: the run's terminal
// state plus every match known for the scanned asset.
type ScanResult struct {
	Success          bool           `json:"success"`
	RunID            int64          `json:"run_id"`
	ImageID          int64          `json:"image_id,omitempty"`
	Status           string         `json:"status"`
	Matches          []MatchSummary `json:"matches"`
	ProviderFailures []string       `json:"provider_failures,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// ReviewResult reports a confirm/decline decision on a match. Transitioned
// is false when the match was already settled and the stored decision is
// being replayed.
type ReviewResult struct {
	Success      bool   `json:"success"`
	MatchID      int64  `json:"match_id"`
	Status       string `json:"status"`
	Transitioned bool   `json:"transitioned"`
	DossierID    int64  `json:"dossier_id,omitempty"`
	DossierError string `json:"dossier_error,omitempty"`
}

// Dossier describes a takedown report and its delivery state.
type Dossier struct {
	ID        int64  `json:"id"`
	MatchID   int64  `json:"match_id"`
	GroupID   string `json:"group_id,omitempty"`
	Status    string `json:"status"`
	Subject   string `json:"subject,omitempty"`
	BodyText  string `json:"body_text,omitempty"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
	SentTo    string `json:"sent_to,omitempty"`
	SentAt    string `json:"sent_at,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// DeliveryAttempt is one row of a dossier's delivery history.
type DeliveryAttempt struct {
	ID           int64  `json:"id"`
	DossierID    int64  `json:"dossier_id"`
	Attempt      int    `json:"attempt"`
	Outcome      string `json:"outcome"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// Notification is one feed entry for the notifications surface.
type Notification struct {
	ID        int64  `json:"id"`
	Owner     string `json:"owner,omitempty"`
	EventType string `json:"event_type"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body,omitempty"`
	RunID     int64  `json:"run_id,omitempty"`
	MatchID   int64  `json:"match_id,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	RunStats    map[string]int `json:"run_stats"`
	LastError   string         `json:"last_error,omitempty"`
	LastRun     *Run           `json:"last_run,omitempty"`
	StageHealth []StageHealth  `json:"stage_health"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// CheckResult reports one startup readiness check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	CatalogPath  string         `json:"catalog_path"`
	LockFilePath string         `json:"lock_file_path"`
	Workflow     WorkflowStatus `json:"workflow"`
	Checks       []CheckResult  `json:"checks,omitempty"`
}

// RunStatsResponse provides a normalized run stats payload.
type RunStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// RunListResponse wraps a collection of runs for API responses.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// RunResponse wraps a single run.
type RunResponse struct {
	Run Run `json:"run"`
}

// AssetListResponse wraps a collection of protected assets.
type AssetListResponse struct {
	Assets []Asset `json:"assets"`
}

// AssetResponse wraps a single protected asset; Created reports whether the
// protect call registered new bytes or found an existing registration.
type AssetResponse struct {
	Asset   Asset `json:"asset"`
	Created bool  `json:"created"`
}

// MatchListResponse wraps a collection of matches.
type MatchListResponse struct {
	Matches []Match `json:"matches"`
}

// MatchResponse wraps a single match.
type MatchResponse struct {
	Match Match `json:"match"`
}

// DossierListResponse wraps a collection of dossiers.
type DossierListResponse struct {
	Dossiers []Dossier `json:"dossiers"`
}

// DossierDetailResponse pairs a dossier with its delivery history.
type DossierDetailResponse struct {
	Dossier  Dossier           `json:"dossier"`
	Attempts []DeliveryAttempt `json:"attempts,omitempty"`
}

// NotificationListResponse wraps the notification feed.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
}

// NotificationsReadResponse reports how many feed entries a read request
// actually marked.
type NotificationsReadResponse struct {
	Updated int64 `json:"updated"`
}

// DossierResponse wraps a single dossier.
type DossierResponse struct {
	Dossier Dossier `json:"dossier"`
}
