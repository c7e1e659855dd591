package testsupport

import (
	"path/filepath"
	"testing"

	"pixguard/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Storage.Backend = "local"
	cfgVal.Storage.LocalRoot = filepath.Join(base, "objects")
	cfgVal.Daemon.APIBind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSerpAPI points the reverse-image provider at a test server.
func WithSerpAPI(baseURL, key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Providers.SerpAPIBaseURL = baseURL
		b.cfg.Providers.SerpAPIKey = key
	}
}

// WithThresholds overrides the scoring thresholds on the test config.
func WithThresholds(external, internal, text float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scoring.ExternalThreshold = external
		b.cfg.Scoring.InternalThreshold = internal
		b.cfg.Scoring.TextThreshold = text
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
