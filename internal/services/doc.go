// Package services provides the shared plumbing used by pipeline stages
// and integrations: context helpers for run, stage, lane, and request
// identifiers, error markers with Wrap for uniform classification, and
// FailureStatus for mapping failures onto run statuses.
package services
