package stage

import (
	"errors"
	"testing"

	"pixguard/internal/fingerprint"
	"pixguard/internal/providers"
	"pixguard/internal/scoring"
	"pixguard/internal/services"
)

func TestParseFingerprint_Valid(t *testing.T) {
	raw := `{"phash":"80000000000000ff","embedding":[0.6,0.8],"caption":"a red vase"}`
	fp, err := ParseFingerprint(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.PHash != "80000000000000ff" {
		t.Fatalf("unexpected phash: %q", fp.PHash)
	}
	if len(fp.Embedding) != 2 || fp.Caption != "a red vase" {
		t.Fatalf("payload not fully decoded: %+v", fp)
	}
}

func TestParseFingerprint_Empty(t *testing.T) {
	fp, err := ParseFingerprint("")
	if err != nil {
		t.Fatalf("unexpected error for empty input: %v", err)
	}
	if fp.HasSignals() {
		t.Fatal("expected zero fingerprint for empty input")
	}
}

func TestParseFingerprint_Invalid(t *testing.T) {
	_, err := ParseFingerprint("{invalid json")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
}

func TestEncodeFingerprintRoundTrip(t *testing.T) {
	in := &fingerprint.Fingerprint{
		PHash:     "80000000000000ff",
		Embedding: []float32{0.6, 0.8},
		Caption:   "a red vase",
	}
	raw, err := EncodeFingerprint(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := ParseFingerprint(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.PHash != in.PHash || len(out.Embedding) != 2 || out.Caption != in.Caption {
		t.Fatalf("fingerprint did not survive the round trip: %+v", out)
	}
}

func TestCandidatesRoundTripKeepsEmbedding(t *testing.T) {
	in := []providers.Candidate{{
		Provider:        "corpus",
		InternalAssetID: 7,
		Similarity:      0.96,
		SimilarityKnown: true,
		Basis:           "embedding",
		Embedding:       []float32{0.6, 0.8},
	}}
	raw, err := EncodeCandidates(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := ParseCandidates(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(out))
	}
	if len(out[0].Embedding) != 2 {
		t.Fatalf("embedding lost in round trip: %+v", out[0])
	}
}

func TestParseCandidates_Invalid(t *testing.T) {
	_, err := ParseCandidates("[{")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
}

func TestScoredRoundTrip(t *testing.T) {
	in := []scoring.Scored{{
		Candidate:  providers.Candidate{Provider: "serpapi", ImageURL: "https://img.example/a.png"},
		ImageScore: 0.9,
		ImageKnown: true,
		Score:      0.9,
		Basis:      "provider",
		Qualified:  true,
	}}
	raw, err := EncodeScored(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := ParseScored(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out) != 1 || !out[0].Qualified || out[0].Score != 0.9 {
		t.Fatalf("unexpected round trip result: %+v", out)
	}
}

func TestParseFailuresDegradesToNil(t *testing.T) {
	if got := ParseFailures("{corrupt"); got != nil {
		t.Fatalf("expected nil for corrupt payload, got %+v", got)
	}
	raw := EncodeFailures([]providers.Failure{{Source: "serpapi", Reason: "rate limited"}})
	failures := ParseFailures(raw)
	if len(failures) != 1 || failures[0].Source != "serpapi" {
		t.Fatalf("unexpected failures: %+v", failures)
	}
}
