package embedding

import (
	"math"
	"testing"
)

func TestNormalizeProducesUnitNorm(t *testing.T) {
	vec := Normalize([]float32{3, 4})
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-6 {
		t.Fatalf("expected unit norm, got %f", math.Sqrt(sum))
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Fatalf("unexpected normalized vector %v", vec)
	}
}

func TestNormalizeZeroVectorIsStable(t *testing.T) {
	vec := Normalize([]float32{0, 0, 0})
	for _, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero vector to stay zero, got %v", vec)
		}
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := []float32{3, 4}
	_ = Normalize(in)
	if in[0] != 3 || in[1] != 4 {
		t.Fatalf("input mutated: %v", in)
	}
}

func TestCosineIdenticalVectors(t *testing.T) {
	got, err := Cosine([]float32{0.6, 0.8}, []float32{0.6, 0.8})
	if err != nil {
		t.Fatalf("cosine: %v", err)
	}
	if math.Abs(got-1) > 1e-6 {
		t.Fatalf("expected 1, got %f", got)
	}
}

func TestCosineOrthogonalVectors(t *testing.T) {
	got, err := Cosine([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("cosine: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	if _, err := Cosine([]float32{1, 0}, []float32{1, 0, 0}); err == nil {
		t.Fatal("expected error for mismatched dimensions")
	}
}

func TestCosineZeroNormReturnsZero(t *testing.T) {
	got, err := Cosine([]float32{0, 0}, []float32{1, 0})
	if err != nil {
		t.Fatalf("cosine: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected 0 for zero-norm vector, got %f", got)
	}
}

func TestClamp01(t *testing.T) {
	if got := Clamp01(-0.3); got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}
	if got := Clamp01(1.7); got != 1 {
		t.Fatalf("expected 1, got %f", got)
	}
	if got := Clamp01(0.42); got != 0.42 {
		t.Fatalf("expected passthrough, got %f", got)
	}
}

func TestVectorEncodeDecodeRoundTrip(t *testing.T) {
	original := []float32{0.1, -0.5, 0.25}
	payload, err := EncodeVector(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeVector(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(original) {
		t.Fatalf("length mismatch: %d vs %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Fatalf("value mismatch at %d: %f vs %f", i, decoded[i], original[i])
		}
	}
}

func TestDecodeVectorEmptyPayload(t *testing.T) {
	decoded, err := DecodeVector("")
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if decoded != nil {
		t.Fatalf("expected nil for empty payload, got %v", decoded)
	}
}

func TestDecodeVectorRejectsGarbage(t *testing.T) {
	if _, err := DecodeVector("{not json"); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
