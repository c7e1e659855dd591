// Package textutil provides small text helpers shared across the pipeline:
// token-frequency vectors for near-duplicate title detection in dossiers,
// and sanitizers for filenames and storage key segments.
//
// Tokenization folds diacritics, lowercases text, splits on non-alphanumeric
// runs, and drops tokens shorter than 3 characters.
package textutil
