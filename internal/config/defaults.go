package config

const (
	defaultDataDir                 = "~/.local/share/pixguard"
	defaultLogDir                  = "~/.local/share/pixguard/logs"
	defaultStagingDir              = "~/.local/share/pixguard/staging"
	defaultLogRetentionDays        = 60
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultEmbeddingDim            = 512
	defaultPHashMaxDistance        = 5
	defaultCaptionBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultCaptionModel            = "google/gemini-3-flash-preview"
	defaultCaptionTimeoutSeconds   = 30
	defaultTextBackend             = "onnx"
	defaultCohereModel             = "embed-english-v3.0"
	defaultExternalThreshold       = 0.75
	defaultInternalThreshold       = 0.2
	defaultTextThreshold           = 0.75
	defaultSerpAPIBaseURL          = "https://serpapi.com/search"
	defaultSerpAPITimeoutSeconds   = 20
	defaultDailyQueryBudget        = 250
	defaultMaxCandidates           = 50
	defaultCorpusLimit             = 20
	defaultStorageBackend          = "local"
	defaultLocalRoot               = "~/.local/share/pixguard/objects"
	defaultPresignTTLSeconds       = 3600
	defaultSMTPPort                = 587
	defaultDeliveryMaxAttempts     = 3
	defaultDeliveryTimeoutSeconds  = 30
	defaultAgentName               = "Pixguard Enforcement"
	defaultNtfyServer              = "https://ntfy.sh"
	defaultNotifyRequestTimeout    = 10
	defaultAPIBind                 = "127.0.0.1:7487"
	defaultPollIntervalSeconds     = 5
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultDeliveryPollSeconds     = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			StagingDir: defaultStagingDir,
		},
		Fingerprint: Fingerprint{
			EmbeddingDim:          defaultEmbeddingDim,
			PHashMaxDistance:      defaultPHashMaxDistance,
			CaptionBaseURL:        defaultCaptionBaseURL,
			CaptionModel:          defaultCaptionModel,
			CaptionTimeoutSeconds: defaultCaptionTimeoutSeconds,
			TextBackend:           defaultTextBackend,
			CohereModel:           defaultCohereModel,
		},
		Scoring: Scoring{
			ExternalThreshold: defaultExternalThreshold,
			InternalThreshold: defaultInternalThreshold,
			TextThreshold:     defaultTextThreshold,
		},
		Providers: Providers{
			SerpAPIBaseURL:        defaultSerpAPIBaseURL,
			SerpAPITimeoutSeconds: defaultSerpAPITimeoutSeconds,
			DailyQueryBudget:      defaultDailyQueryBudget,
			MaxCandidates:         defaultMaxCandidates,
			CorpusEnabled:         true,
			CorpusLimit:           defaultCorpusLimit,
		},
		Storage: Storage{
			Backend:           defaultStorageBackend,
			LocalRoot:         defaultLocalRoot,
			PresignTTLSeconds: defaultPresignTTLSeconds,
		},
		Delivery: Delivery{
			SMTPPort:       defaultSMTPPort,
			AgentName:      defaultAgentName,
			MaxAttempts:    defaultDeliveryMaxAttempts,
			TimeoutSeconds: defaultDeliveryTimeoutSeconds,
		},
		Notifications: Notifications{
			NtfyServer:     defaultNtfyServer,
			RequestTimeout: defaultNotifyRequestTimeout,
			FeedEnabled:    true,
			Matches:        true,
			Review:         true,
			Delivery:       true,
			Errors:         true,
		},
		Daemon: Daemon{
			APIBind:                  defaultAPIBind,
			PollIntervalSeconds:      defaultPollIntervalSeconds,
			HeartbeatIntervalSeconds: defaultHeartbeatInterval,
			HeartbeatTimeoutSeconds:  defaultHeartbeatTimeout,
			DeliveryPollSeconds:      defaultDeliveryPollSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
