// Package workflow advances scan runs through the configured pipeline
// stages.
//
// The Manager polls the catalog for runnable work, reclaims stale runs via
// heartbeats, and feeds runs into the registered stage handlers
// (fingerprinter, fetcher, scorer, persister, notifier) while capturing
// progress and failure metadata. It also aggregates run stats and stage
// health for the status surfaces.
//
// Processing is split into two lanes: analysis (fingerprinting, which owns
// the embedding models) and matching (candidate fetching, scoring,
// persisting, notifying). Each lane polls for runs matching its statuses
// and processes them independently, so a fresh upload can be fingerprinted
// while an earlier run is still waiting on reverse-image providers.
//
// Add new lifecycle stages by extending StageSet, updating the catalog
// status enums, and teaching the manager how to transition runs; this
// package is the authoritative home for that coordination logic.
package workflow
