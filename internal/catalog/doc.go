// Package catalog persists everything Pixguard knows: protected source
// assets, scan runs with their stage outputs, matched assets, matches,
// dossiers with their delivery attempts, the notification feed, and
// per-provider daily usage. Storage is a single SQLite database opened in
// WAL mode with busy retries so the daemon, CLI, and tests can share it.
//
// Runs carry their intermediate stage outputs as JSON columns, which keeps
// the pipeline resumable after a crash: a run picked up in any ready
// status has everything its next stage needs on the row.
package catalog
