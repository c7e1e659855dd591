// Package scoring ranks search candidates against a source fingerprint and
// decides which ones qualify as matches.
//
// Two independent signals feed the decision: an image similarity (a clamped
// cosine over embeddings, or the provider's own estimate when no local
// vector exists) and an optional text similarity between the source caption
// and the candidate's description. A candidate qualifies when either signal
// reaches its threshold; thresholds are inclusive. A signal that cannot be
// computed is omitted from the decision rather than counted as zero.
package scoring
