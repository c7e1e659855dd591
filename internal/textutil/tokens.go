package textutil

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tokenSplitPattern matches non-alphanumeric character sequences for tokenization.
var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

// diacriticFold decomposes text and strips combining marks so accented
// listing titles tokenize the same as their plain-ASCII forms.
var diacriticFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldDiacritics returns text with combining marks removed. On transform
// failure the input is returned unchanged.
func FoldDiacritics(text string) string {
	folded, _, err := transform.String(diacriticFold, text)
	if err != nil {
		return text
	}
	return folded
}

// TokenVector is a term-frequency vector over a piece of text, used to spot
// near-duplicate listing titles when assembling dossier evidence.
type TokenVector struct {
	tokens map[string]float64
	norm   float64
}

// NewTokenVector builds a vector from text. Returns nil when the text
// produces no usable tokens.
func NewTokenVector(text string) *TokenVector {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	var norm float64
	for _, count := range counts {
		norm += count * count
	}
	return &TokenVector{
		tokens: counts,
		norm:   math.Sqrt(norm),
	}
}

// Tokenize splits text into lowercase tokens, filtering short tokens.
func Tokenize(text string) []string {
	lowered := strings.ToLower(FoldDiacritics(text))
	raw := tokenSplitPattern.Split(lowered, -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		token = strings.TrimSpace(token)
		if len(token) < 3 {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// TokenCount returns the number of unique tokens in the vector.
func (v *TokenVector) TokenCount() int {
	if v == nil {
		return 0
	}
	return len(v.tokens)
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 if either vector is nil or has zero norm.
func CosineSimilarity(a, b *TokenVector) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}
