package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFingerprint(); err != nil {
		return err
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFingerprint() error {
	if c.Fingerprint.EmbeddingDim <= 0 {
		return errors.New("fingerprint.embedding_dim must be positive")
	}
	if c.Fingerprint.PHashMaxDistance < 0 || c.Fingerprint.PHashMaxDistance > 64 {
		return errors.New("fingerprint.phash_max_distance must be between 0 and 64")
	}
	switch c.Fingerprint.TextBackend {
	case "onnx", "cohere":
	default:
		return fmt.Errorf("fingerprint.text_backend must be onnx or cohere, got %q", c.Fingerprint.TextBackend)
	}
	if c.Fingerprint.TextBackend == "cohere" && c.Fingerprint.CohereAPIKey == "" {
		return errors.New("fingerprint.cohere_api_key must be set when fingerprint.text_backend is cohere (or set COHERE_API_KEY)")
	}
	if c.Fingerprint.CaptionEnabled && c.Fingerprint.CaptionAPIKey == "" {
		return errors.New("fingerprint.caption_api_key must be set when fingerprint.caption_enabled is true (or set OPENROUTER_API_KEY)")
	}
	return nil
}

func (c *Config) validateScoring() error {
	for key, value := range map[string]float64{
		"scoring.external_threshold": c.Scoring.ExternalThreshold,
		"scoring.internal_threshold": c.Scoring.InternalThreshold,
		"scoring.text_threshold":     c.Scoring.TextThreshold,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	return nil
}

func (c *Config) validateProviders() error {
	return ensurePositiveMap(map[string]int{
		"providers.serpapi_timeout_seconds": c.Providers.SerpAPITimeoutSeconds,
		"providers.daily_query_budget":      c.Providers.DailyQueryBudget,
		"providers.max_candidates":          c.Providers.MaxCandidates,
		"providers.corpus_limit":            c.Providers.CorpusLimit,
	})
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "local":
		if strings.TrimSpace(c.Storage.LocalRoot) == "" {
			return errors.New("storage.local_root must be set when storage.backend is local")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return errors.New("storage.s3_bucket must be set when storage.backend is s3")
		}
	default:
		return fmt.Errorf("storage.backend must be local or s3, got %q", c.Storage.Backend)
	}
	if c.Storage.PresignTTLSeconds <= 0 {
		return errors.New("storage.presign_ttl_seconds must be positive")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.SMTPHost == "" {
		return nil
	}
	if c.Delivery.SMTPPort < 1 || c.Delivery.SMTPPort > 65535 {
		return errors.New("delivery.smtp_port must be a valid port")
	}
	if c.Delivery.FromAddress == "" {
		return errors.New("delivery.from_address must be set when delivery.smtp_host is set")
	}
	if c.Delivery.Recipient == "" {
		return errors.New("delivery.recipient must be set when delivery.smtp_host is set")
	}
	if c.Delivery.MaxAttempts < 1 {
		return errors.New("delivery.max_attempts must be >= 1")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if err := ensurePositiveMap(map[string]int{
		"daemon.poll_interval_seconds":  c.Daemon.PollIntervalSeconds,
		"daemon.delivery_poll_seconds":  c.Daemon.DeliveryPollSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"delivery.timeout_seconds":      c.Delivery.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Daemon.HeartbeatIntervalSeconds <= 0 {
		return errors.New("daemon.heartbeat_interval_seconds must be positive")
	}
	if c.Daemon.HeartbeatTimeoutSeconds <= 0 {
		return errors.New("daemon.heartbeat_timeout_seconds must be positive")
	}
	if c.Daemon.HeartbeatTimeoutSeconds <= c.Daemon.HeartbeatIntervalSeconds {
		return errors.New("daemon.heartbeat_timeout_seconds must be greater than daemon.heartbeat_interval_seconds")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
