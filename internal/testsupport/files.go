package testsupport

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates a file of the given size populated with a repeating byte
// pattern. Parent directories are created as needed.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent directory: %v", err)
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer file.Close()

	chunk := make([]byte, 64*1024)
	for i := range chunk {
		chunk[i] = 0x42
	}
	remaining := size
	for remaining > 0 {
		n := int64(len(chunk))
		if remaining < n {
			n = remaining
		}
		if _, err := file.Write(chunk[:n]); err != nil {
			t.Fatalf("write file: %v", err)
		}
		remaining -= n
	}
}

// StagePNG writes a small staged image under a test temp dir and returns
// its path, for runs whose stage under test never opens the staged file.
func StagePNG(t testing.TB, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	WriteTestPNG(t, path, 1)
	return path
}

// WriteTestPNG renders a deterministic gradient image to path. The seed
// shifts the gradient so distinct seeds produce visually distinct images
// with different perceptual hashes.
func WriteTestPNG(t testing.TB, path string, seed uint8) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent directory: %v", err)
	}

	const size = 64
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r := uint8((x*4 + int(seed)*16) % 256)
			g := uint8((y*4 + int(seed)*8) % 256)
			b := uint8((x + y + int(seed)) % 256)
			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create image file: %v", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}
