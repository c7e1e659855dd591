// Package fingerprint computes the identifying signals for a protected
// image: a 64-bit perceptual hash, a dense embedding, and an optional text
// caption. A fingerprint is usable as long as at least one of the hash or
// the embedding was produced; the caption is purely additive.
package fingerprint
