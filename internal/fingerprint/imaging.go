package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"net/http"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

var supportedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImageType sniffs the content type from the leading bytes.
func DetectImageType(data []byte) string {
	limit := len(data)
	if limit > 512 {
		limit = 512
	}
	return http.DetectContentType(data[:limit])
}

// IsSupportedImageType reports whether the content type is one the engine
// can decode.
func IsSupportedImageType(contentType string) bool {
	_, ok := supportedImageTypes[contentType]
	return ok
}

// ExtensionForType returns the canonical file extension for a supported
// content type, or empty string for anything else.
func ExtensionForType(contentType string) string {
	return supportedImageTypes[contentType]
}

// DecodeImage decodes image bytes into a pixel grid. JPEG, PNG, GIF and
// WebP are registered.
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// BytesSHA256 returns the hex content hash used for asset deduplication.
func BytesSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileSHA256 hashes a file on disk.
func FileSHA256(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file for hashing: %w", err)
	}
	return BytesSHA256(data), nil
}
