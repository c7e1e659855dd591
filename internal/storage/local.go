package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pixguard/internal/config"
)

// LocalBackend stores objects under a root directory on the daemon host.
type LocalBackend struct {
	root string
}

// NewLocalBackend creates the object root if needed. An empty local_root
// falls back to <data_dir>/objects.
func NewLocalBackend(cfg *config.Config) (*LocalBackend, error) {
	root := cfg.Storage.LocalRoot
	if root == "" {
		root = filepath.Join(cfg.Paths.DataDir, "objects")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create object root: %w", err)
	}
	return &LocalBackend{root: root}, nil
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.root, clean), nil
}

// Put writes the object atomically: a temp file in the destination directory
// is renamed into place so readers never observe a partial object.
func (b *LocalBackend) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	target, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("finalize object %s: %w", key, err)
	}
	return nil
}

func (b *LocalBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	target, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	return f, nil
}

func (b *LocalBackend) Exists(ctx context.Context, key string) (bool, error) {
	target, err := b.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
	return true, nil
}

func (b *LocalBackend) Delete(ctx context.Context, key string) error {
	target, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// PublicURL always returns "": local files are not reachable by external
// search engines. Callers skip external lookups in that case.
func (b *LocalBackend) PublicURL(ctx context.Context, key string) (string, error) {
	return "", nil
}

// FilePath exposes the on-disk location of an object for commands that want
// to open it directly, such as dossier preview.
func (b *LocalBackend) FilePath(key string) (string, error) {
	return b.resolve(key)
}
