package preflight

import (
	"context"
	"path/filepath"
	"strings"

	"pixguard/internal/config"
)

// CheckCaptionFromConfig evaluates captioning status from config and
// connectivity.
func CheckCaptionFromConfig(cfg *config.Config) Result {
	const name = "Caption LLM"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.Fingerprint.CaptionEnabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	if strings.TrimSpace(cfg.Fingerprint.CaptionAPIKey) == "" {
		return Result{Name: name, Detail: "Missing API key"}
	}
	return CheckCaption(context.Background(), cfg.CaptionLLM())
}

// CheckProvidersFromConfig evaluates candidate source status from config.
func CheckProvidersFromConfig(cfg *config.Config) Result {
	if cfg == nil {
		return Result{Name: "Candidate sources", Detail: "Unknown"}
	}
	return CheckCandidateSources(cfg)
}

// CheckDeliveryFromConfig evaluates dossier delivery status from config.
func CheckDeliveryFromConfig(cfg *config.Config) Result {
	const name = "Dossier delivery"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Delivery.SMTPHost) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return CheckDelivery(cfg.Delivery)
}

// CheckStorageFromConfig evaluates object storage status from config. The
// S3 backend is shape-checked only; bucket reachability surfaces on first
// upload.
func CheckStorageFromConfig(cfg *config.Config) Result {
	const name = "Object storage"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "", "local":
		root := cfg.Storage.LocalRoot
		if root == "" {
			root = filepath.Join(cfg.Paths.DataDir, "objects")
		}
		return CheckDirectoryAccess(name, root)
	case "s3":
		if strings.TrimSpace(cfg.Storage.S3Bucket) == "" {
			return Result{Name: name, Detail: "s3 backend without s3_bucket"}
		}
		return Result{Name: name, Passed: true, Detail: "s3://" + cfg.Storage.S3Bucket}
	default:
		return Result{Name: name, Detail: "unknown backend " + cfg.Storage.Backend}
	}
}
