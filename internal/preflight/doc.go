// Package preflight provides readiness checks for the filesystem paths,
// model files, and external services a scan pipeline depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failure before the
//     workflow lanes begin polling, so a misconfigured install fails loudly
//     instead of parking every run in failed.
//   - The CLI "pixguard status" command uses the *FromConfig helpers to
//     display per-service health.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
