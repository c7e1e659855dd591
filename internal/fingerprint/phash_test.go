package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"pixguard/internal/testsupport"
)

func TestComputePHashIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.png")
	testsupport.WriteTestPNG(t, path, 3)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	img, _, err := DecodeImage(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	first, err := ComputePHash(img)
	if err != nil {
		t.Fatalf("first hash: %v", err)
	}
	second, err := ComputePHash(img)
	if err != nil {
		t.Fatalf("second hash: %v", err)
	}
	if first != second {
		t.Fatalf("hash not deterministic: %s vs %s", first, second)
	}
	if len(first) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", first)
	}

	distance, err := HammingDistance(first, second)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if distance != 0 {
		t.Fatalf("expected zero distance for identical image, got %d", distance)
	}
}

func TestHammingDistanceCountsBits(t *testing.T) {
	distance, err := HammingDistance("0000000000000000", "00000000000000ff")
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if distance != 8 {
		t.Fatalf("expected 8 differing bits, got %d", distance)
	}

	distance, err = HammingDistance("ffffffffffffffff", "ffffffffffffffff")
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if distance != 0 {
		t.Fatalf("expected 0 for identical hashes, got %d", distance)
	}
}

func TestParsePHashRejectsGarbage(t *testing.T) {
	if _, err := ParsePHash("not-a-hash"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := HammingDistance("zz", "0000000000000000"); err == nil {
		t.Fatal("expected distance to propagate parse error")
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	original := uint64(0xdeadbeefcafe0042)
	parsed, err := ParsePHash(FormatPHash(original))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if parsed != original {
		t.Fatalf("expected %x, got %x", original, parsed)
	}
}
