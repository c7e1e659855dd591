package pipeline

import (
	"context"
	"fmt"

	"log/slog"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/logging"
	"pixguard/internal/providers"
	"pixguard/internal/services"
	"pixguard/internal/stage"
	"pixguard/internal/storage"
)

// CandidateSources assembles the configured candidate sources: the external
// reverse image search gated by the daily query budget, and the internal
// corpus of other protected assets.
func CandidateSources(cfg *config.Config, store *catalog.Store, logger *slog.Logger) []providers.Source {
	var sources []providers.Source
	if cfg.Providers.SerpAPIKey != "" {
		serp := providers.NewSerpAPISource(cfg, logger)
		sources = append(sources, providers.WithQuota(serp, store, cfg.Providers.DailyQueryBudget))
	}
	if cfg.Providers.CorpusEnabled {
		sources = append(sources, providers.NewCorpusSource(cfg, store, logger))
	}
	return sources
}

// Fetcher collects candidate sightings of a fingerprinted asset from every
// configured source. Individual source failures are recorded, never fatal;
// the stage succeeds with whatever union the surviving sources produced.
type Fetcher struct {
	store   *catalog.Store
	cfg     *config.Config
	logger  *slog.Logger
	fanout  *providers.Fanout
	objects storage.Backend
}

// NewFetcher constructs the fetching stage handler using the configured sources.
func NewFetcher(cfg *config.Config, store *catalog.Store, logger *slog.Logger, objects storage.Backend) *Fetcher {
	fanout := providers.NewFanout(logger, 0, CandidateSources(cfg, store, logger)...)
	return NewFetcherWithDependencies(cfg, store, logger, fanout, objects)
}

// NewFetcherWithDependencies allows injecting collaborators (used in tests).
func NewFetcherWithDependencies(cfg *config.Config, store *catalog.Store, logger *slog.Logger, fanout *providers.Fanout, objects storage.Backend) *Fetcher {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "fetcher"))
	}
	return &Fetcher{store: store, cfg: cfg, logger: stageLogger, fanout: fanout, objects: objects}
}

func (f *Fetcher) Prepare(ctx context.Context, run *catalog.Run) error {
	if run.ProgressStage == "" {
		run.ProgressStage = "Fetching"
	}
	run.ProgressMessage = "Collecting candidate sightings"
	run.ProgressPercent = 0
	run.ErrorMessage = ""
	logging.WithContext(ctx, f.logger).Info("starting candidate collection", logging.Int64(logging.FieldRunID, run.ID))
	return nil
}

func (f *Fetcher) Execute(ctx context.Context, run *catalog.Run) error {
	logger := logging.WithContext(ctx, f.logger)

	fp, err := stage.ParseFingerprint(run.FingerprintJSON)
	if err != nil {
		return err
	}
	if !fp.HasSignals() {
		return services.Wrap(
			services.ErrValidation, "fetching", "validate inputs",
			"Run carries no fingerprint; rerun fingerprinting", nil)
	}
	if run.SourceAssetID == nil {
		return services.Wrap(
			services.ErrValidation, "fetching", "validate inputs",
			"Run has no source asset; rerun fingerprinting", nil)
	}
	asset, err := f.store.GetSourceAsset(ctx, *run.SourceAssetID)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "fetching", "load asset", "Failed to load the protected asset", err)
	}
	if asset == nil {
		return services.Wrap(
			services.ErrNotFound, "fetching", "load asset",
			"Protected asset no longer exists; submit the image again", nil)
	}

	imageURL, err := f.objects.PublicURL(ctx, asset.StorageKey)
	if err != nil {
		logging.WarnWithContext(logger, "no public image url available", "public_url_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "external reverse image search skipped for this run"),
		)
		imageURL = ""
	}

	query := providers.Query{
		AssetID:   asset.ID,
		ImageURL:  imageURL,
		PHash:     fp.PHash,
		Embedding: fp.Embedding,
		Caption:   fp.Caption,
		Limit:     f.cfg.Providers.MaxCandidates,
	}
	candidates, failures, err := f.fanout.Collect(ctx, query)
	if err != nil {
		return err
	}

	run.CandidatesJSON, err = stage.EncodeCandidates(candidates)
	if err != nil {
		return err
	}
	run.ProviderFailuresJSON = stage.EncodeFailures(failures)

	message := fmt.Sprintf("Collected %d candidates", len(candidates))
	if len(failures) > 0 {
		message = fmt.Sprintf("Collected %d candidates (%d sources failed)", len(candidates), len(failures))
	}
	run.SetProgress("Fetching", message, 100)
	logger.Info(
		"candidate collection finished",
		logging.Int("candidates", len(candidates)),
		logging.Int("failed_sources", len(failures)),
	)
	return nil
}

// HealthCheck verifies at least one candidate source is configured.
func (f *Fetcher) HealthCheck(ctx context.Context) stage.Health {
	const name = "fetcher"
	if f.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if f.cfg.Providers.SerpAPIKey == "" && !f.cfg.Providers.CorpusEnabled {
		return stage.Unhealthy(name, "no candidate sources configured")
	}
	return stage.Healthy(name)
}
