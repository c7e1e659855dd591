package ipc

import "pixguard/internal/api"

// Run mirrors the HTTP API run DTO for IPC callers.
type Run = api.Run

// Asset mirrors the HTTP API source-asset DTO.
type Asset = api.Asset

// Match mirrors the HTTP API match DTO.
type Match = api.Match

// ReviewResult mirrors the HTTP API review outcome DTO.
type ReviewResult = api.ReviewResult

// ScanResult mirrors the HTTP API scan result document.
type ScanResult = api.ScanResult

// Dossier mirrors the HTTP API dossier DTO.
type Dossier = api.Dossier

// DeliveryAttempt mirrors the HTTP API delivery-attempt DTO.
type DeliveryAttempt = api.DeliveryAttempt

// Notification mirrors the HTTP API notification DTO.
type Notification = api.Notification

// StageHealth describes readiness of a workflow stage.
type StageHealth = api.StageHealth

// CheckResult reports one startup readiness check.
type CheckResult = api.CheckResult

// StartRequest triggers daemon workflow startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon workflow.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/workflow status information.
type StatusResponse struct {
	Running     bool               `json:"running"`
	PID         int                `json:"pid"`
	CatalogPath string             `json:"catalog_path"`
	LockPath    string             `json:"lock_path"`
	Workflow    api.WorkflowStatus `json:"workflow"`
	Checks      []CheckResult      `json:"checks"`
}

// RunListRequest filters run listing by status.
type RunListRequest struct {
	Statuses []string `json:"statuses"`
}

// RunListResponse contains scan runs.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// RunDescribeRequest fetches a single run by id.
type RunDescribeRequest struct {
	ID int64 `json:"id"`
}

// RunDescribeResponse contains a single run.
type RunDescribeResponse struct {
	Run Run `json:"run"`
}

// RunResultRequest fetches the scan result document for a run.
type RunResultRequest struct {
	ID int64 `json:"id"`
}

// RunResultResponse contains the scan result document.
type RunResultResponse struct {
	Result ScanResult `json:"result"`
}

// RunClearRequest removes all runs.
type RunClearRequest struct{}

// RunClearResponse reports number of removed runs.
type RunClearResponse struct {
	Removed int64 `json:"removed"`
}

// RunClearCompletedRequest removes completed runs.
type RunClearCompletedRequest struct{}

// RunClearCompletedResponse reports number of removed runs.
type RunClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// RunClearFailedRequest removes failed runs.
type RunClearFailedRequest struct{}

// RunClearFailedResponse reports number of removed runs.
type RunClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// RunResetRequest resets in-flight runs back to pending.
type RunResetRequest struct{}

// RunResetResponse reports number of runs reset.
type RunResetResponse struct {
	Updated int64 `json:"updated"`
}

// RunRetryRequest retries failed runs. Empty list means all failed runs.
type RunRetryRequest struct {
	IDs []int64 `json:"ids"`
}

// RunRetryResponse reports number of retried runs.
type RunRetryResponse struct {
	Updated int64 `json:"updated"`
}

// RunHealthRequest fetches aggregate run diagnostics.
type RunHealthRequest struct{}

// RunHealthResponse reports run health information.
type RunHealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Review     int `json:"review"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalRuns        int      `json:"total_runs"`
	Error            string   `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// ProtectRequest registers a local image file as a protected asset.
type ProtectRequest struct {
	Path  string `json:"path"`
	Owner string `json:"owner"`
}

// ProtectResponse reports the registered asset.
type ProtectResponse struct {
	Asset   Asset `json:"asset"`
	Created bool  `json:"created"`
}

// ScanRequest queues a scan run for a local image file.
type ScanRequest struct {
	Path  string `json:"path"`
	Owner string `json:"owner"`
}

// ScanResponse reports the queued run.
type ScanResponse struct {
	Run Run `json:"run"`
}

// RescanRequest queues a fresh run for an already-protected asset.
type RescanRequest struct {
	AssetID int64 `json:"asset_id"`
}

// RescanResponse reports the queued run.
type RescanResponse struct {
	Run Run `json:"run"`
}

// AssetListRequest filters protected assets by owner.
type AssetListRequest struct {
	Owner string `json:"owner"`
}

// AssetListResponse contains protected assets.
type AssetListResponse struct {
	Assets []Asset `json:"assets"`
}

// MatchListRequest filters match listing by lifecycle status.
type MatchListRequest struct {
	Statuses []string `json:"statuses"`
}

// MatchListResponse contains matches.
type MatchListResponse struct {
	Matches []Match `json:"matches"`
}

// MatchDescribeRequest fetches a single match by id.
type MatchDescribeRequest struct {
	ID int64 `json:"id"`
}

// MatchDescribeResponse contains a single match.
type MatchDescribeResponse struct {
	Match Match `json:"match"`
}

// MatchReviewRequest applies a confirm or decline decision.
type MatchReviewRequest struct {
	ID         int64  `json:"id"`
	Action     string `json:"action"`
	ReviewedBy string `json:"reviewed_by"`
}

// MatchReviewResponse reports the review outcome.
type MatchReviewResponse struct {
	Result ReviewResult `json:"result"`
}

// DossierListRequest filters dossiers by delivery status.
type DossierListRequest struct {
	Statuses []string `json:"statuses"`
}

// DossierListResponse contains dossiers.
type DossierListResponse struct {
	Dossiers []Dossier `json:"dossiers"`
}

// DossierDescribeRequest fetches a dossier with its delivery attempts.
type DossierDescribeRequest struct {
	ID int64 `json:"id"`
}

// DossierDescribeResponse contains a dossier and its attempt history.
type DossierDescribeResponse struct {
	Dossier  Dossier           `json:"dossier"`
	Attempts []DeliveryAttempt `json:"attempts"`
}

// DossierDeliverRequest triggers an immediate delivery attempt.
type DossierDeliverRequest struct {
	ID int64 `json:"id"`
}

// DossierDeliverResponse reports the dossier after the attempt.
type DossierDeliverResponse struct {
	Dossier Dossier `json:"dossier"`
}

// NotificationListRequest filters the notification feed.
type NotificationListRequest struct {
	Owner      string `json:"owner"`
	UnreadOnly bool   `json:"unread_only"`
	Limit      int    `json:"limit"`
}

// NotificationListResponse contains feed entries.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
}

// NotificationsReadRequest marks feed entries as read.
type NotificationsReadRequest struct {
	IDs []int64 `json:"ids"`
}

// NotificationsReadResponse reports how many entries were updated.
type NotificationsReadResponse struct {
	Updated int64 `json:"updated"`
}
