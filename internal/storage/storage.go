package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"pixguard/internal/config"
	"pixguard/internal/textutil"
)

// Purposes name the folder an object lands in under its owner's prefix.
const (
	PurposeOriginals = "originals"
	PurposeDossiers  = "dossiers"
)

// Backend stores protected originals and dossier artifacts.
type Backend interface {
	Name() string
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error

	// PublicURL returns a time-limited URL an external search engine can
	// fetch the object through, or "" when the backend cannot mint one.
	PublicURL(ctx context.Context, key string) (string, error)
}

// ObjectKey builds the canonical key for a new object:
// users/<owner>/<purpose>/<uuid><ext>.
func ObjectKey(owner, purpose, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join("users", textutil.SanitizeToken(owner), purpose, uuid.NewString()+ext)
}

// FromConfig selects the backend named in the storage section.
func FromConfig(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Storage.Backend {
	case "", "local":
		return NewLocalBackend(cfg)
	case "s3":
		return NewS3Backend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
