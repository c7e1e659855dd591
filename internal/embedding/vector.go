package embedding

import (
	"encoding/json"
	"fmt"
	"math"
)

// Normalize returns an L2-normalized copy of vec. A zero vector is returned
// unchanged so callers never divide by zero downstream.
func Normalize(vec []float32) []float32 {
	out := make([]float32, len(vec))
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		copy(out, vec)
		return out
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// Cosine computes the cosine similarity between two vectors. Returns 0 when
// either vector has zero norm, and an error when dimensions differ.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimensions differ: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("vectors are empty")
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Clamp01 limits a similarity value to the [0, 1] range. Negative cosine
// values carry no ranking signal for infringement scoring.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// EncodeVector serializes a vector for storage in a catalog text column.
func EncodeVector(vec []float32) (string, error) {
	data, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("encode vector: %w", err)
	}
	return string(data), nil
}

// DecodeVector parses a vector previously written by EncodeVector. An empty
// payload decodes to nil, matching an asset with no embedding on file.
func DecodeVector(payload string) ([]float32, error) {
	if payload == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(payload), &vec); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return vec, nil
}
