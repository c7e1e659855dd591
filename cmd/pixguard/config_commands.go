package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pixguard/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set serpapi_api_key (or export SERPAPI_API_KEY) before scanning.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if ctx.configFlag != nil {
				configPath = *ctx.configFlag
			}
			cfg, path, exists, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, redactedConfigView(cfg))
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			info := func(label, value string) {
				fmt.Fprintln(out, renderStatusLine(label, statusInfo, value, colorize))
			}
			secret := func(label string, present bool) {
				kind := statusOK
				if !present {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine(label, kind, "configured: "+yesNo(present), colorize))
			}
			section := func(title string) {
				for _, line := range renderSectionHeader(title, colorize) {
					fmt.Fprintln(out, line)
				}
			}

			section("Paths")
			info("Data", cfg.Paths.DataDir)
			info("Logs", cfg.Paths.LogDir)
			info("Staging", cfg.Paths.StagingDir)

			fmt.Fprintln(out)
			section("Fingerprinting")
			info("Image Model", cfg.Fingerprint.ModelPath)
			if cfg.Fingerprint.TextModelPath != "" {
				info("Text Model", cfg.Fingerprint.TextModelPath)
			}
			info("Embedding Dim", fmt.Sprintf("%d", cfg.Fingerprint.EmbeddingDim))
			info("Caption", yesNo(cfg.Fingerprint.CaptionEnabled))
			if cfg.Fingerprint.CaptionEnabled {
				info("Caption Model", cfg.Fingerprint.CaptionModel)
				secret("Caption Key", cfg.Fingerprint.CaptionAPIKey != "")
			}

			fmt.Fprintln(out)
			section("Candidate Sources")
			secret("SerpAPI Key", cfg.Providers.SerpAPIKey != "")
			info("Daily Budget", fmt.Sprintf("%d", cfg.Providers.DailyQueryBudget))
			info("Max Candidates", fmt.Sprintf("%d", cfg.Providers.MaxCandidates))
			info("Corpus", yesNo(cfg.Providers.CorpusEnabled))

			fmt.Fprintln(out)
			section("Scoring")
			info("External Threshold", fmt.Sprintf("%.2f", cfg.Scoring.ExternalThreshold))
			info("Internal Threshold", fmt.Sprintf("%.2f", cfg.Scoring.InternalThreshold))

			fmt.Fprintln(out)
			section("Storage")
			info("Backend", cfg.Storage.Backend)
			if cfg.Storage.Backend == "s3" {
				info("Bucket", cfg.Storage.S3Bucket)
				info("Region", cfg.Storage.S3Region)
			} else if cfg.Storage.LocalRoot != "" {
				info("Local Root", cfg.Storage.LocalRoot)
			}

			fmt.Fprintln(out)
			section("Delivery")
			info("SMTP Host", cfg.Delivery.SMTPHost)
			info("Recipient", cfg.Delivery.Recipient)
			secret("SMTP Password", cfg.Delivery.SMTPPassword != "")
			info("Max Attempts", fmt.Sprintf("%d", cfg.Delivery.MaxAttempts))

			fmt.Fprintln(out)
			section("Notifications")
			info("Ntfy Topic", cfg.Notifications.NtfyTopic)
			info("Feed", yesNo(cfg.Notifications.FeedEnabled))

			fmt.Fprintln(out)
			section("Daemon")
			info("API Bind", cfg.Daemon.APIBind)
			secret("API Token", cfg.Daemon.APIToken != "")
			info("Poll Interval", fmt.Sprintf("%ds", cfg.Daemon.PollIntervalSeconds))
			info("Log Level", cfg.Logging.Level)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}

// redactedConfigView strips credential material so config show --json never
// leaks secrets into scripts or logs.
func redactedConfigView(cfg *config.Config) map[string]any {
	return map[string]any{
		"paths": map[string]any{
			"data_dir":    cfg.Paths.DataDir,
			"log_dir":     cfg.Paths.LogDir,
			"staging_dir": cfg.Paths.StagingDir,
		},
		"fingerprint": map[string]any{
			"model_path":      cfg.Fingerprint.ModelPath,
			"text_model_path": cfg.Fingerprint.TextModelPath,
			"embedding_dim":   cfg.Fingerprint.EmbeddingDim,
			"caption_enabled": cfg.Fingerprint.CaptionEnabled,
			"caption_model":   cfg.Fingerprint.CaptionModel,
			"caption_key_set": cfg.Fingerprint.CaptionAPIKey != "",
		},
		"providers": map[string]any{
			"serpapi_key_set":    cfg.Providers.SerpAPIKey != "",
			"daily_query_budget": cfg.Providers.DailyQueryBudget,
			"max_candidates":     cfg.Providers.MaxCandidates,
			"corpus_enabled":     cfg.Providers.CorpusEnabled,
		},
		"scoring": map[string]any{
			"external_threshold": cfg.Scoring.ExternalThreshold,
			"internal_threshold": cfg.Scoring.InternalThreshold,
		},
		"storage": map[string]any{
			"backend":    cfg.Storage.Backend,
			"s3_bucket":  cfg.Storage.S3Bucket,
			"s3_region":  cfg.Storage.S3Region,
			"local_root": cfg.Storage.LocalRoot,
		},
		"delivery": map[string]any{
			"smtp_host":         cfg.Delivery.SMTPHost,
			"smtp_port":         cfg.Delivery.SMTPPort,
			"recipient":         cfg.Delivery.Recipient,
			"smtp_password_set": cfg.Delivery.SMTPPassword != "",
			"max_attempts":      cfg.Delivery.MaxAttempts,
		},
		"notifications": map[string]any{
			"ntfy_server":  cfg.Notifications.NtfyServer,
			"ntfy_topic":   cfg.Notifications.NtfyTopic,
			"feed_enabled": cfg.Notifications.FeedEnabled,
		},
		"daemon": map[string]any{
			"api_bind":              cfg.Daemon.APIBind,
			"api_token_set":         cfg.Daemon.APIToken != "",
			"poll_interval_seconds": cfg.Daemon.PollIntervalSeconds,
		},
		"logging": map[string]any{
			"format": cfg.Logging.Format,
			"level":  cfg.Logging.Level,
		},
	}
}
