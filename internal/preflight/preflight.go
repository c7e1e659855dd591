package preflight

import (
	"context"

	"pixguard/internal/config"
)

// minimum free space on the staging volume before uploads start failing
// in confusing ways mid-scan.
const minStagingBytes = 256 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Filesystem (always checked)
	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	results = append(results, CheckDiskSpace("Staging disk space", cfg.Paths.StagingDir, minStagingBytes))

	// Embedding model files (when the ONNX pipeline is configured)
	if cfg.Fingerprint.ModelPath != "" {
		results = append(results, CheckModelFile("Image embedding model", cfg.Fingerprint.ModelPath))
	}
	if cfg.Fingerprint.TextModelPath != "" {
		results = append(results, CheckModelFile("Text embedding model", cfg.Fingerprint.TextModelPath))
	}
	if cfg.Fingerprint.TokenizerPath != "" {
		results = append(results, CheckModelFile("Tokenizer", cfg.Fingerprint.TokenizerPath))
	}

	// Caption LLM
	if cfg.Fingerprint.CaptionEnabled {
		results = append(results, CheckCaption(ctx, cfg.CaptionLLM()))
	}

	// Candidate sources and dossier delivery
	results = append(results, CheckCandidateSources(cfg))
	if cfg.Delivery.SMTPHost != "" {
		results = append(results, CheckDelivery(cfg.Delivery))
	}

	return results
}
