package fingerprint

import (
	"fmt"
	"image"
	"strconv"

	"github.com/corona10/goimagehash"
)

// ComputePHash calculates the 64-bit perceptual hash of an image, rendered
// as a fixed-width hex string for storage.
func ComputePHash(img image.Image) (string, error) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("perception hash: %w", err)
	}
	return FormatPHash(hash.GetHash()), nil
}

// FormatPHash renders hash bits as the canonical 16-character hex form.
func FormatPHash(bits uint64) string {
	return fmt.Sprintf("%016x", bits)
}

// ParsePHash converts a stored hex hash back into its bit representation.
func ParsePHash(value string) (uint64, error) {
	bits, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse phash %q: %w", value, err)
	}
	return bits, nil
}

// HammingDistance counts differing bits between two stored hashes.
func HammingDistance(a, b string) (int, error) {
	bitsA, err := ParsePHash(a)
	if err != nil {
		return 0, err
	}
	bitsB, err := ParsePHash(b)
	if err != nil {
		return 0, err
	}
	hashA := goimagehash.NewImageHash(bitsA, goimagehash.PHash)
	hashB := goimagehash.NewImageHash(bitsB, goimagehash.PHash)
	distance, err := hashA.Distance(hashB)
	if err != nil {
		return 0, fmt.Errorf("hamming distance: %w", err)
	}
	return distance, nil
}
