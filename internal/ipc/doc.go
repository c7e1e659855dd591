// Package ipc exposes daemon control over a Unix domain socket using
// JSON-RPC. The CLI is the only intended client; requests map one-to-one
// onto daemon facade methods so the socket carries no business logic of
// its own.
package ipc
