package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"pixguard/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PIXGUARD_CONFIG", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "pixguard")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.StagingDir != filepath.Join(wantData, "staging") {
		t.Fatalf("unexpected staging dir: %q", cfg.Paths.StagingDir)
	}
	if cfg.Daemon.APIBind != "127.0.0.1:7487" {
		t.Fatalf("unexpected api bind: %q", cfg.Daemon.APIBind)
	}
	if cfg.Fingerprint.EmbeddingDim != 512 {
		t.Fatalf("unexpected embedding dim: %d", cfg.Fingerprint.EmbeddingDim)
	}
	if cfg.Fingerprint.PHashMaxDistance != 5 {
		t.Fatalf("unexpected phash distance: %d", cfg.Fingerprint.PHashMaxDistance)
	}
	if cfg.Fingerprint.CaptionEnabled {
		t.Fatal("expected captioning disabled by default")
	}
	if cfg.Fingerprint.TextBackend != "onnx" {
		t.Fatalf("unexpected text backend: %q", cfg.Fingerprint.TextBackend)
	}
	if cfg.Scoring.ExternalThreshold != 0.75 {
		t.Fatalf("unexpected external threshold: %v", cfg.Scoring.ExternalThreshold)
	}
	if cfg.Scoring.InternalThreshold != 0.2 {
		t.Fatalf("unexpected internal threshold: %v", cfg.Scoring.InternalThreshold)
	}
	if cfg.Providers.DailyQueryBudget != 250 {
		t.Fatalf("unexpected daily budget: %d", cfg.Providers.DailyQueryBudget)
	}
	if !cfg.Providers.CorpusEnabled {
		t.Fatal("expected corpus source enabled by default")
	}
	if cfg.Storage.Backend != "local" {
		t.Fatalf("unexpected storage backend: %q", cfg.Storage.Backend)
	}
	if cfg.Delivery.SMTPHost != "" {
		t.Fatalf("expected delivery disabled by default, got host %q", cfg.Delivery.SMTPHost)
	}
	if cfg.Daemon.HeartbeatTimeoutSeconds <= cfg.Daemon.HeartbeatIntervalSeconds {
		t.Fatal("expected heartbeat timeout greater than interval")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.StagingDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "pixguard.toml")

	type payload struct {
		Scoring struct {
			ExternalThreshold float64 `toml:"external_threshold"`
		} `toml:"scoring"`
		Providers struct {
			SerpAPIKey    string `toml:"serpapi_api_key"`
			MaxCandidates int    `toml:"max_candidates"`
		} `toml:"providers"`
		Daemon struct {
			HeartbeatIntervalSeconds int `toml:"heartbeat_interval_seconds"`
			HeartbeatTimeoutSeconds  int `toml:"heartbeat_timeout_seconds"`
		} `toml:"daemon"`
	}
	custom := payload{}
	custom.Scoring.ExternalThreshold = 0.8
	custom.Providers.SerpAPIKey = "abc123"
	custom.Providers.MaxCandidates = 10
	custom.Daemon.HeartbeatIntervalSeconds = 20
	custom.Daemon.HeartbeatTimeoutSeconds = 200
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Scoring.ExternalThreshold != 0.8 {
		t.Fatalf("expected threshold override, got %v", cfg.Scoring.ExternalThreshold)
	}
	if cfg.Providers.SerpAPIKey != "abc123" {
		t.Fatalf("expected provider key from file, got %q", cfg.Providers.SerpAPIKey)
	}
	if cfg.Providers.MaxCandidates != 10 {
		t.Fatalf("expected max candidates 10, got %d", cfg.Providers.MaxCandidates)
	}
	if cfg.Daemon.HeartbeatIntervalSeconds != 20 {
		t.Fatalf("expected heartbeat interval 20, got %d", cfg.Daemon.HeartbeatIntervalSeconds)
	}
	if cfg.Daemon.HeartbeatTimeoutSeconds != 200 {
		t.Fatalf("expected heartbeat timeout 200, got %d", cfg.Daemon.HeartbeatTimeoutSeconds)
	}
}

func TestLoadHonorsConfigEnvVar(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "alt.toml")
	if err := os.WriteFile(configPath, []byte("[scoring]\nexternal_threshold = 0.9\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PIXGUARD_CONFIG", configPath)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected env-resolved config, got %q exists=%v", resolved, exists)
	}
	if cfg.Scoring.ExternalThreshold != 0.9 {
		t.Fatalf("expected threshold from env-resolved file, got %v", cfg.Scoring.ExternalThreshold)
	}
}

func TestEnvVarFallbacksForSecrets(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "pixguard.toml")
	if err := os.WriteFile(configPath, []byte("[delivery]\nsmtp_password = \"${PIX_TEST_SMTP}\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SERPAPI_API_KEY", "env-serp")
	t.Setenv("COHERE_API_KEY", "env-cohere")
	t.Setenv("PIXGUARD_API_TOKEN", "env-token")
	t.Setenv("PIX_TEST_SMTP", "env-smtp")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Providers.SerpAPIKey != "env-serp" {
		t.Errorf("expected provider key from env, got %q", cfg.Providers.SerpAPIKey)
	}
	if cfg.Fingerprint.CohereAPIKey != "env-cohere" {
		t.Errorf("expected cohere key from env, got %q", cfg.Fingerprint.CohereAPIKey)
	}
	if cfg.Daemon.APIToken != "env-token" {
		t.Errorf("expected api token from env, got %q", cfg.Daemon.APIToken)
	}
	if cfg.Delivery.SMTPPassword != "env-smtp" {
		t.Errorf("expected smtp password from ${VAR} expansion, got %q", cfg.Delivery.SMTPPassword)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "serpapi_api_key") {
		t.Fatalf("sample config missing provider key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Scoring.ExternalThreshold != 0.75 {
		t.Fatalf("unexpected sample threshold: %v", cfg.Scoring.ExternalThreshold)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Scoring.ExternalThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range threshold")
	}

	cfg = config.Default()
	cfg.Fingerprint.TextBackend = "remote"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown text backend")
	}

	cfg = config.Default()
	cfg.Fingerprint.CaptionEnabled = true
	cfg.Fingerprint.CaptionAPIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when captioning enabled without key")
	}

	cfg = config.Default()
	cfg.Storage.Backend = "s3"
	cfg.Storage.S3Bucket = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for s3 backend without bucket")
	}

	cfg = config.Default()
	cfg.Delivery.SMTPHost = "smtp.example.com"
	cfg.Delivery.FromAddress = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for delivery without from address")
	}

	cfg = config.Default()
	cfg.Daemon.HeartbeatTimeoutSeconds = cfg.Daemon.HeartbeatIntervalSeconds
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when timeout <= interval")
	}
}
