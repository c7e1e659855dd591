package testsupport

import (
	"context"
	"testing"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
)

// MustOpenStore opens a catalog store for tests and closes it on cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

// NewRun inserts a run and returns it, failing the test on error.
func NewRun(t testing.TB, store *catalog.Store, owner, filename, stagedPath string) *catalog.Run {
	t.Helper()

	run, err := store.NewRun(context.Background(), owner, filename, stagedPath)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

// SeedFingerprintedAsset inserts a source asset that already carries a
// perceptual hash and embedding, ready for corpus matching in tests.
func SeedFingerprintedAsset(t testing.TB, store *catalog.Store, owner, sha256, phash, embeddingJSON string) *catalog.SourceAsset {
	t.Helper()

	asset, _, err := store.EnsureSourceAsset(context.Background(), &catalog.SourceAsset{
		Owner:            owner,
		StorageKey:       "users/" + owner + "/originals/" + sha256 + ".png",
		OriginalFilename: sha256 + ".png",
		ContentType:      "image/png",
		SHA256:           sha256,
	})
	if err != nil {
		t.Fatalf("ensure source asset: %v", err)
	}
	asset.PHash = phash
	asset.EmbeddingJSON = embeddingJSON
	if err := store.UpdateSourceAsset(context.Background(), asset); err != nil {
		t.Fatalf("update source asset: %v", err)
	}
	return asset
}
