// Package daemon coordinates the long-running Pixguard process.
//
// It wires configuration, the catalog store, and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances,
// and serves the HTTP API while the workflow lanes run. The daemon exposes
// catalog maintenance helpers, accepts protect/scan submissions on behalf of
// the IPC and HTTP surfaces, and snapshots preflight checks at startup so
// status calls can report them without re-probing.
//
// Keep orchestration logic here: individual pipeline stages live in their
// own packages while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
