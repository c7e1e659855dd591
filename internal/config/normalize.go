package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeFingerprint(); err != nil {
		return err
	}
	c.normalizeProviders()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeDelivery()
	c.normalizeNotifications()
	c.normalizeDaemon()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFingerprint() error {
	var err error
	if c.Fingerprint.ModelPath, err = expandPath(expandSecret(c.Fingerprint.ModelPath)); err != nil {
		return fmt.Errorf("fingerprint.model_path: %w", err)
	}
	if c.Fingerprint.TextModelPath, err = expandPath(expandSecret(c.Fingerprint.TextModelPath)); err != nil {
		return fmt.Errorf("fingerprint.text_model_path: %w", err)
	}
	if c.Fingerprint.TokenizerPath, err = expandPath(expandSecret(c.Fingerprint.TokenizerPath)); err != nil {
		return fmt.Errorf("fingerprint.tokenizer_path: %w", err)
	}
	if c.Fingerprint.ONNXRuntimeLibPath, err = expandPath(expandSecret(c.Fingerprint.ONNXRuntimeLibPath)); err != nil {
		return fmt.Errorf("fingerprint.onnxruntime_lib_path: %w", err)
	}
	if c.Fingerprint.EmbeddingDim <= 0 {
		c.Fingerprint.EmbeddingDim = defaultEmbeddingDim
	}
	if c.Fingerprint.PHashMaxDistance < 0 {
		c.Fingerprint.PHashMaxDistance = defaultPHashMaxDistance
	}
	c.Fingerprint.CaptionAPIKey = expandSecret(c.Fingerprint.CaptionAPIKey)
	if c.Fingerprint.CaptionAPIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Fingerprint.CaptionAPIKey = strings.TrimSpace(value)
		}
	}
	c.Fingerprint.CaptionBaseURL = strings.TrimSpace(c.Fingerprint.CaptionBaseURL)
	if c.Fingerprint.CaptionBaseURL == "" {
		c.Fingerprint.CaptionBaseURL = defaultCaptionBaseURL
	}
	c.Fingerprint.CaptionModel = strings.TrimSpace(c.Fingerprint.CaptionModel)
	if c.Fingerprint.CaptionModel == "" {
		c.Fingerprint.CaptionModel = defaultCaptionModel
	}
	if c.Fingerprint.CaptionTimeoutSeconds <= 0 {
		c.Fingerprint.CaptionTimeoutSeconds = defaultCaptionTimeoutSeconds
	}
	c.Fingerprint.TextBackend = strings.ToLower(strings.TrimSpace(c.Fingerprint.TextBackend))
	if c.Fingerprint.TextBackend == "" {
		c.Fingerprint.TextBackend = defaultTextBackend
	}
	c.Fingerprint.CohereAPIKey = expandSecret(c.Fingerprint.CohereAPIKey)
	if c.Fingerprint.CohereAPIKey == "" {
		if value, ok := os.LookupEnv("COHERE_API_KEY"); ok {
			c.Fingerprint.CohereAPIKey = strings.TrimSpace(value)
		}
	}
	c.Fingerprint.CohereModel = strings.TrimSpace(c.Fingerprint.CohereModel)
	if c.Fingerprint.CohereModel == "" {
		c.Fingerprint.CohereModel = defaultCohereModel
	}
	return nil
}

func (c *Config) normalizeProviders() {
	c.Providers.SerpAPIKey = expandSecret(c.Providers.SerpAPIKey)
	if c.Providers.SerpAPIKey == "" {
		if value, ok := os.LookupEnv("SERPAPI_API_KEY"); ok {
			c.Providers.SerpAPIKey = strings.TrimSpace(value)
		}
	}
	c.Providers.SerpAPIBaseURL = strings.TrimSpace(c.Providers.SerpAPIBaseURL)
	if c.Providers.SerpAPIBaseURL == "" {
		c.Providers.SerpAPIBaseURL = defaultSerpAPIBaseURL
	}
	if c.Providers.SerpAPITimeoutSeconds <= 0 {
		c.Providers.SerpAPITimeoutSeconds = defaultSerpAPITimeoutSeconds
	}
	if c.Providers.DailyQueryBudget <= 0 {
		c.Providers.DailyQueryBudget = defaultDailyQueryBudget
	}
	if c.Providers.MaxCandidates <= 0 {
		c.Providers.MaxCandidates = defaultMaxCandidates
	}
	if c.Providers.CorpusLimit <= 0 {
		c.Providers.CorpusLimit = defaultCorpusLimit
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	c.Storage.S3Bucket = strings.TrimSpace(c.Storage.S3Bucket)
	c.Storage.S3Region = strings.TrimSpace(c.Storage.S3Region)
	c.Storage.S3Profile = strings.TrimSpace(c.Storage.S3Profile)
	c.Storage.S3Endpoint = strings.TrimSpace(c.Storage.S3Endpoint)
	if c.Storage.PresignTTLSeconds <= 0 {
		c.Storage.PresignTTLSeconds = defaultPresignTTLSeconds
	}
	if strings.TrimSpace(c.Storage.LocalRoot) == "" {
		c.Storage.LocalRoot = defaultLocalRoot
	}
	var err error
	if c.Storage.LocalRoot, err = expandPath(c.Storage.LocalRoot); err != nil {
		return fmt.Errorf("storage.local_root: %w", err)
	}
	return nil
}

func (c *Config) normalizeDelivery() {
	c.Delivery.SMTPHost = strings.TrimSpace(c.Delivery.SMTPHost)
	if c.Delivery.SMTPPort <= 0 {
		c.Delivery.SMTPPort = defaultSMTPPort
	}
	c.Delivery.SMTPUsername = strings.TrimSpace(c.Delivery.SMTPUsername)
	c.Delivery.SMTPPassword = expandSecret(c.Delivery.SMTPPassword)
	if c.Delivery.SMTPPassword == "" {
		if value, ok := os.LookupEnv("SMTP_PASSWORD"); ok {
			c.Delivery.SMTPPassword = strings.TrimSpace(value)
		}
	}
	c.Delivery.FromAddress = strings.TrimSpace(c.Delivery.FromAddress)
	c.Delivery.AgentName = strings.TrimSpace(c.Delivery.AgentName)
	if c.Delivery.AgentName == "" {
		c.Delivery.AgentName = defaultAgentName
	}
	c.Delivery.AgentContact = strings.TrimSpace(c.Delivery.AgentContact)
	c.Delivery.Recipient = strings.TrimSpace(c.Delivery.Recipient)
	if c.Delivery.MaxAttempts <= 0 {
		c.Delivery.MaxAttempts = defaultDeliveryMaxAttempts
	}
	if c.Delivery.TimeoutSeconds <= 0 {
		c.Delivery.TimeoutSeconds = defaultDeliveryTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyServer = strings.TrimSpace(c.Notifications.NtfyServer)
	if c.Notifications.NtfyServer == "" {
		c.Notifications.NtfyServer = defaultNtfyServer
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeDaemon() {
	c.Daemon.APIBind = strings.TrimSpace(c.Daemon.APIBind)
	if c.Daemon.APIBind == "" {
		c.Daemon.APIBind = defaultAPIBind
	}
	c.Daemon.APIToken = expandSecret(c.Daemon.APIToken)
	if c.Daemon.APIToken == "" {
		if value, ok := os.LookupEnv("PIXGUARD_API_TOKEN"); ok {
			c.Daemon.APIToken = strings.TrimSpace(value)
		}
	}
	if c.Daemon.PollIntervalSeconds <= 0 {
		c.Daemon.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Daemon.HeartbeatIntervalSeconds <= 0 {
		c.Daemon.HeartbeatIntervalSeconds = defaultHeartbeatInterval
	}
	if c.Daemon.HeartbeatTimeoutSeconds <= 0 {
		c.Daemon.HeartbeatTimeoutSeconds = defaultHeartbeatTimeout
	}
	if c.Daemon.DeliveryPollSeconds <= 0 {
		c.Daemon.DeliveryPollSeconds = defaultDeliveryPollSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// expandSecret trims and expands ${VAR} references so secrets can live in
// the environment while TOML keeps a stable shape.
func expandSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if strings.Contains(trimmed, "${") {
		trimmed = strings.TrimSpace(os.ExpandEnv(trimmed))
	}
	return trimmed
}
