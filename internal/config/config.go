package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	StagingDir string `toml:"staging_dir"`
}

// Fingerprint contains configuration for perceptual hashing, embedding
// models, and optional captioning.
type Fingerprint struct {
	ModelPath             string `toml:"model_path"`
	TextModelPath         string `toml:"text_model_path"`
	TokenizerPath         string `toml:"tokenizer_path"`
	ONNXRuntimeLibPath    string `toml:"onnxruntime_lib_path"`
	EmbeddingDim          int    `toml:"embedding_dim"`
	PHashMaxDistance      int    `toml:"phash_max_distance"`
	CaptionEnabled        bool   `toml:"caption_enabled"`
	CaptionAPIKey         string `toml:"caption_api_key"`
	CaptionBaseURL        string `toml:"caption_base_url"`
	CaptionModel          string `toml:"caption_model"`
	CaptionTimeoutSeconds int    `toml:"caption_timeout_seconds"`
	TextBackend           string `toml:"text_backend"`
	CohereAPIKey          string `toml:"cohere_api_key"`
	CohereModel           string `toml:"cohere_model"`
}

// Scoring contains similarity thresholds per candidate origin.
type Scoring struct {
	ExternalThreshold float64 `toml:"external_threshold"`
	InternalThreshold float64 `toml:"internal_threshold"`
	TextThreshold     float64 `toml:"text_threshold"`
}

// Providers contains configuration for candidate sources.
type Providers struct {
	SerpAPIKey            string `toml:"serpapi_api_key"`
	SerpAPIBaseURL        string `toml:"serpapi_base_url"`
	SerpAPITimeoutSeconds int    `toml:"serpapi_timeout_seconds"`
	DailyQueryBudget      int    `toml:"daily_query_budget"`
	MaxCandidates         int    `toml:"max_candidates"`
	CorpusEnabled         bool   `toml:"corpus_enabled"`
	CorpusLimit           int    `toml:"corpus_limit"`
}

// Storage contains configuration for asset object storage.
type Storage struct {
	Backend           string `toml:"backend"`
	S3Bucket          string `toml:"s3_bucket"`
	S3Region          string `toml:"s3_region"`
	S3Profile         string `toml:"s3_profile"`
	S3Endpoint        string `toml:"s3_endpoint"`
	S3UsePathStyle    bool   `toml:"s3_use_path_style"`
	PresignTTLSeconds int    `toml:"presign_ttl_seconds"`
	LocalRoot         string `toml:"local_root"`
}

// Delivery contains configuration for SMTP dossier delivery.
type Delivery struct {
	SMTPHost       string `toml:"smtp_host"`
	SMTPPort       int    `toml:"smtp_port"`
	SMTPUsername   string `toml:"smtp_username"`
	SMTPPassword   string `toml:"smtp_password"`
	FromAddress    string `toml:"from_address"`
	AgentName      string `toml:"agent_name"`
	AgentContact   string `toml:"agent_contact"`
	Recipient      string `toml:"recipient"`
	MaxAttempts    int    `toml:"max_attempts"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications and
// the persisted notification feed.
type Notifications struct {
	NtfyServer     string `toml:"ntfy_server"`
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	FeedEnabled    bool   `toml:"feed_enabled"`
	Matches        bool   `toml:"matches"`
	Review         bool   `toml:"review"`
	Delivery       bool   `toml:"delivery"`
	Errors         bool   `toml:"errors"`
}

// Daemon contains configuration for the daemon API and pipeline timing.
type Daemon struct {
	APIBind                  string `toml:"api_bind"`
	APIToken                 string `toml:"api_token"`
	PollIntervalSeconds      int    `toml:"poll_interval_seconds"`
	HeartbeatIntervalSeconds int    `toml:"heartbeat_interval_seconds"`
	HeartbeatTimeoutSeconds  int    `toml:"heartbeat_timeout_seconds"`
	DeliveryPollSeconds      int    `toml:"delivery_poll_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Pixguard.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and staging directories
//   - Fingerprint: perceptual hash, embedding models, captioning
//   - Scoring: similarity thresholds per candidate origin
//   - Providers: reverse-image search and corpus candidate sources
//   - Storage: S3 or local object storage for protected assets
//   - Delivery: SMTP settings for infringement dossiers
//   - Notifications: ntfy push settings and the notification feed
//   - Daemon: API bind address and pipeline timing
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Fingerprint   Fingerprint   `toml:"fingerprint"`
	Scoring       Scoring       `toml:"scoring"`
	Providers     Providers     `toml:"providers"`
	Storage       Storage       `toml:"storage"`
	Delivery      Delivery      `toml:"delivery"`
	Notifications Notifications `toml:"notifications"`
	Daemon        Daemon        `toml:"daemon"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/pixguard/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv("PIXGUARD_CONFIG"))
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/pixguard/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pixguard.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The local storage root is created on a best-effort basis so the daemon
// can run when external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.StagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Storage.Backend == "local" && strings.TrimSpace(c.Storage.LocalRoot) != "" {
		_ = os.MkdirAll(c.Storage.LocalRoot, 0o755)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// CaptionConfig contains the connection settings for the captioning model.
type CaptionConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// CaptionLLM returns the captioning connection settings.
func (c *Config) CaptionLLM() CaptionConfig {
	return CaptionConfig{
		APIKey:         strings.TrimSpace(c.Fingerprint.CaptionAPIKey),
		BaseURL:        strings.TrimSpace(c.Fingerprint.CaptionBaseURL),
		Model:          strings.TrimSpace(c.Fingerprint.CaptionModel),
		TimeoutSeconds: c.Fingerprint.CaptionTimeoutSeconds,
	}
}
