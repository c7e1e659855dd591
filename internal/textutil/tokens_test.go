package textutil

import (
	"math"
	"testing"
)

func TestCosineSimilarityNil(t *testing.T) {
	if got := CosineSimilarity(nil, nil); got != 0 {
		t.Fatalf("nil vectors should score 0, got %v", got)
	}
	if got := CosineSimilarity(NewTokenVector("watercolor fox print"), nil); got != 0 {
		t.Fatalf("one nil vector should score 0, got %v", got)
	}
}

func TestCosineSimilarityIdenticalTitles(t *testing.T) {
	a := NewTokenVector("Watercolor Fox Art Print")
	b := NewTokenVector("watercolor fox art print")
	got := CosineSimilarity(a, b)
	if math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical titles should score 1, got %v", got)
	}
}

func TestCosineSimilarityDisjointTitles(t *testing.T) {
	a := NewTokenVector("watercolor fox print")
	b := NewTokenVector("ceramic owl mug")
	if got := CosineSimilarity(a, b); got != 0 {
		t.Fatalf("disjoint titles should score 0, got %v", got)
	}
}

func TestCosineSimilarityPartialOverlap(t *testing.T) {
	a := NewTokenVector("watercolor fox print")
	b := NewTokenVector("watercolor fox poster")
	got := CosineSimilarity(a, b)
	if got <= 0 || got >= 1 {
		t.Fatalf("partial overlap should land strictly between 0 and 1, got %v", got)
	}
}

func TestNewTokenVectorFiltersShortTokens(t *testing.T) {
	vec := NewTokenVector("a an of fox")
	if vec == nil {
		t.Fatal("expected a vector")
	}
	if vec.TokenCount() != 1 {
		t.Fatalf("tokens shorter than 3 chars should be dropped, got %d tokens", vec.TokenCount())
	}
}

func TestNewTokenVectorEmptyText(t *testing.T) {
	if vec := NewTokenVector("  ?!  "); vec != nil {
		t.Fatalf("expected nil vector for empty text, got %d tokens", vec.TokenCount())
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"evidence: listing/42":   "evidence- listing-42",
		"  report.pdf  ":         "report.pdf",
		`what?"<>|`:              "what",
		"dossier*2026\\aug":      "dossier-2026-aug",
	}
	for in, want := range cases {
		if got := SanitizeFileName(in); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := map[string]string{
		"Alice Example":  "alice_example",
		"bob@example":    "bob_example",
		"":               "unknown",
		"___":            "unknown",
		"User-42":        "user-42",
	}
	for in, want := range cases {
		if got := SanitizeToken(in); got != want {
			t.Fatalf("SanitizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFoldDiacritics(t *testing.T) {
	if got := FoldDiacritics("Café Décor"); got != "Cafe Decor" {
		t.Fatalf("FoldDiacritics = %q", got)
	}
}

func TestTokenizeFoldsAccents(t *testing.T) {
	a := NewTokenVector("café wall décor")
	b := NewTokenVector("cafe wall decor")
	if got := CosineSimilarity(a, b); math.Abs(got-1) > 1e-9 {
		t.Fatalf("accented and plain titles should score 1, got %v", got)
	}
}

func TestSanitizeTokenFoldsAccents(t *testing.T) {
	if got := SanitizeToken("Zoë Müller"); got != "zoe_muller" {
		t.Fatalf("SanitizeToken = %q", got)
	}
}
