package catalog

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a scan run.
type Status string

const (
	StatusPending        Status = "pending"
	StatusFingerprinting Status = "fingerprinting"
	StatusFingerprinted  Status = "fingerprinted"
	StatusFetching       Status = "fetching"
	StatusFetched        Status = "fetched"
	StatusScoring        Status = "scoring"
	StatusScored         Status = "scored"
	StatusPersisting     Status = "persisting"
	StatusPersisted      Status = "persisted"
	StatusNotifying      Status = "notifying"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusReview         Status = "review"
)

// DaemonStopReason is the error message set when runs are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusFingerprinting,
	StatusFingerprinted,
	StatusFetching,
	StatusFetched,
	StatusScoring,
	StatusScored,
	StatusPersisting,
	StatusPersisted,
	StatusNotifying,
	StatusCompleted,
	StatusFailed,
	StatusReview,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusFingerprinting: {},
	StatusFetching:       {},
	StatusScoring:        {},
	StatusPersisting:     {},
	StatusNotifying:      {},
}

type statusTransition struct {
	from Status
	to   Status
}

var stageRollbackTransitions = []statusTransition{
	{from: StatusFingerprinting, to: StatusPending},
	{from: StatusFetching, to: StatusFingerprinted},
	{from: StatusScoring, to: StatusFetched},
	{from: StatusPersisting, to: StatusScored},
	{from: StatusNotifying, to: StatusPersisted},
}

// MatchStatus is the review state of a match. Three explicit states; a
// match is never in an indeterminate condition.
type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchConfirmed MatchStatus = "confirmed"
	MatchDeclined  MatchStatus = "declined"
)

// ParseMatchStatus converts a string into a known MatchStatus.
func ParseMatchStatus(value string) (MatchStatus, bool) {
	normalized := MatchStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case MatchPending, MatchConfirmed, MatchDeclined:
		return normalized, true
	default:
		return "", false
	}
}

// Terminal reports whether a match status accepts no further transitions.
func (m MatchStatus) Terminal() bool {
	return m == MatchConfirmed || m == MatchDeclined
}

// DeliveryStatus is the lifecycle of a dossier delivery.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// ParseDeliveryStatus converts a string into a known DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, bool) {
	normalized := DeliveryStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case DeliveryPending, DeliverySent, DeliveryDelivered, DeliveryFailed:
		return normalized, true
	default:
		return "", false
	}
}

// AssetKind distinguishes externally discovered assets from corpus assets.
type AssetKind string

const (
	AssetExternal AssetKind = "external"
	AssetInternal AssetKind = "internal"
)

// Run represents one scan of a source image through the match pipeline.
// Stage outputs are carried on the row as JSON so any daemon process can
// resume a run.
type Run struct {
	ID                   int64
	Owner                string
	OriginalFilename     string
	StagedPath           string
	SourceAssetID        *int64
	Status               Status
	ErrorMessage         string
	ProgressStage        string
	ProgressPercent      float64
	ProgressMessage      string
	FingerprintJSON      string
	CandidatesJSON       string
	ScoredJSON           string
	MatchCount           int64
	ProviderFailuresJSON string
	NeedsReview          bool
	ReviewReason         string
	LastHeartbeat        *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SourceAsset is a protected image owned by a user.
type SourceAsset struct {
	ID               int64
	Owner            string
	StorageKey       string
	OriginalFilename string
	ContentType      string
	SHA256           string
	PHash            string
	EmbeddingJSON    string
	Caption          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Fingerprinted reports whether the asset carries at least one usable
// fingerprint signal.
func (a *SourceAsset) Fingerprinted() bool {
	return a != nil && (a.PHash != "" || a.EmbeddingJSON != "")
}

// MatchedAsset is the image a match points at: an external URL discovered
// by a provider, or another catalog asset found by the corpus scan.
type MatchedAsset struct {
	ID            int64
	Kind          AssetKind
	URL           string
	SourceAssetID *int64
	Provider      string
	Title         string
	SourceDomain  string
	CreatedAt     time.Time
}

// Match pairs a source asset with a matched asset at a similarity score.
// The (source, matched) pair is unique; re-running a scan never duplicates
// a match.
type Match struct {
	ID             int64
	SourceAssetID  int64
	MatchedAssetID int64
	RunID          *int64
	Score          float64
	Basis          string
	Status         MatchStatus
	CandidateJSON  string
	ReviewedAt     *time.Time
	ReviewedBy     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Dossier is the enforcement package generated when a match is confirmed.
// One dossier per match, at most once.
type Dossier struct {
	ID           int64
	MatchID      int64
	GroupID      string
	Status       DeliveryStatus
	Subject      string
	BodyText     string
	SnapshotJSON string
	Attempts     int
	LastError    string
	SentTo       string
	SentAt       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeliveryAttempt records one delivery try for a dossier.
type DeliveryAttempt struct {
	ID           int64
	DossierID    int64
	Attempt      int
	Outcome      DeliveryStatus
	ErrorMessage string
	CreatedAt    time.Time
}

// Notification is a persisted feed entry mirroring push notifications.
type Notification struct {
	ID        int64
	Owner     string
	EventType string
	Title     string
	Body      string
	RunID     *int64
	MatchID   *int64
	ReadAt    *time.Time
	CreatedAt time.Time
}

// DatabaseHealth captures diagnostic information about the catalog database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRuns        int
	Error            string
}

// HealthSummary describes aggregated run counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Review     int
	Failed     int
	Completed  int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight stage.
func (r Run) IsProcessing() bool {
	_, ok := processingStatuses[r.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// InitProgress resets progress fields for a new stage. If ProgressStage is
// currently empty it is set to the provided stage value; otherwise the
// existing stage is preserved to support resume.
func (r *Run) InitProgress(stage, message string) {
	if r.ProgressStage == "" {
		r.ProgressStage = stage
	}
	r.ProgressMessage = message
	r.ProgressPercent = 0
	r.ErrorMessage = ""
}

// SetProgress updates all three progress fields together.
func (r *Run) SetProgress(stage, message string, percent float64) {
	r.ProgressStage = stage
	r.ProgressMessage = message
	r.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (r *Run) SetProgressComplete(stage, message string) {
	r.SetProgress(stage, message, 100)
}

// SetFailed marks the run as failed with the given error message.
func (r *Run) SetFailed(message string) {
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.ProgressPercent = 0
	r.ProgressMessage = message
	r.LastHeartbeat = nil
	r.ProgressStage = "Failed"
}

// ProcessingLane partitions the pipeline into the model-bound analysis
// stage and the network-bound matching stages.
type ProcessingLane string

const (
	LaneAnalysis ProcessingLane = "analysis"
	LaneMatching ProcessingLane = "matching"
)

// LaneForRun maps a run to its processing lane for observability purposes.
func LaneForRun(run *Run) ProcessingLane {
	if run == nil {
		return LaneAnalysis
	}
	switch run.Status {
	case StatusPending, StatusFingerprinting:
		return LaneAnalysis
	case StatusFingerprinted, StatusFetching, StatusFetched, StatusScoring,
		StatusScored, StatusPersisting, StatusPersisted, StatusNotifying, StatusCompleted:
		return LaneMatching
	case StatusFailed, StatusReview:
		if run.FingerprintJSON != "" {
			return LaneMatching
		}
		return LaneAnalysis
	default:
		return LaneAnalysis
	}
}
