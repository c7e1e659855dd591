// Package notify publishes workflow events to the owner.
//
// Events fan out to two sinks: an ntfy push topic for phones and a persisted
// feed in the catalog that the CLI lists. Either sink can be disabled; with
// both off, Publish is a no-op. Delivery is best-effort by contract — callers
// log failures and move on, a notification must never fail a run.
package notify
