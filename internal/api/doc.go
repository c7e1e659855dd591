// Package api defines wire-format types and converters for the IPC and HTTP
// API layer, plus the workflows the CLI and daemon share for admitting and
// scanning images. It translates catalog models into transport-friendly DTOs
// that consumers can render without coupling to internal types.
//
// # Key Types
//
// Run: transport representation of a scan run with progress, lane, match
// count, and provider failure summaries.
//
// ScanResult: terminal outcome of a scan — success flag, the protected
// image id, and every match known for that asset.
//
// ReviewResult: outcome of a confirm/decline decision including the dossier
// id when confirmation produced one.
//
// WorkflowStatus/DaemonStatus: daemon running state, run stats, stage
// health, and startup check results.
//
// # Converters
//
// FromRun: catalog.Run -> Run with lane derivation and provider failure
// flattening. FromMatch: catalog.Match -> Match with target facts lifted
// out of the stored candidate payload. FromResult: pipeline.Result ->
// ScanResult.
//
// # Workflows
//
// ProtectImage registers an image without scanning. ScanImage stages an
// upload and either runs the pipeline synchronously or enqueues a run for
// the daemon. RescanAsset enqueues or runs a scan for an already protected
// asset. ReviewMatch and DeliverDossier wrap the review and delivery
// services for transport callers.
//
// # Design Notes
//
// DTOs use snake_case JSON tags matching the HTTP API's documented payloads.
// Internal enums (catalog.Status, catalog.MatchStatus) are exposed as
// lowercase strings. Timestamps use RFC3339 with milliseconds. Match target
// facts are derived from the stored candidate payload rather than joined
// from other tables, so a single row converts without extra queries.
package api
