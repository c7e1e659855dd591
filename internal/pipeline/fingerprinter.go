package pipeline

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"log/slog"

	"pixguard/internal/caption"
	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/embedding"
	"pixguard/internal/fingerprint"
	"pixguard/internal/logging"
	"pixguard/internal/services"
	"pixguard/internal/stage"
	"pixguard/internal/storage"
)

// Fingerprinter computes perceptual signals for a submitted image and
// registers it as a protected source asset.
type Fingerprinter struct {
	store   *catalog.Store
	cfg     *config.Config
	logger  *slog.Logger
	engine  *fingerprint.Engine
	objects storage.Backend
}

// NewFingerprinter constructs the fingerprinting stage handler. The models
// provider is shared across stages so the inference runtime loads at most
// once per process.
func NewFingerprinter(cfg *config.Config, store *catalog.Store, logger *slog.Logger, models *embedding.Lazy, objects storage.Backend) *Fingerprinter {
	var captioner fingerprint.Captioner
	if cfg.Fingerprint.CaptionEnabled && cfg.Fingerprint.CaptionAPIKey != "" {
		captioner = caption.NewClient(cfg.CaptionLLM())
	}
	engine := fingerprint.NewEngine(cfg, models, captioner, logger)
	return NewFingerprinterWithDependencies(cfg, store, logger, engine, objects)
}

// NewFingerprinterWithDependencies allows injecting collaborators (used in tests).
func NewFingerprinterWithDependencies(cfg *config.Config, store *catalog.Store, logger *slog.Logger, engine *fingerprint.Engine, objects storage.Backend) *Fingerprinter {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "fingerprinter"))
	}
	return &Fingerprinter{store: store, cfg: cfg, logger: stageLogger, engine: engine, objects: objects}
}

func (f *Fingerprinter) Prepare(ctx context.Context, run *catalog.Run) error {
	logger := logging.WithContext(ctx, f.logger)
	if run.ProgressStage == "" {
		run.ProgressStage = "Fingerprinting"
	}
	run.ProgressMessage = "Computing perceptual signals"
	run.ProgressPercent = 0
	run.ErrorMessage = ""
	logger.Info(
		"starting fingerprinting",
		logging.String("filename", run.OriginalFilename),
		logging.String(logging.FieldOwner, run.Owner),
	)
	return nil
}

func (f *Fingerprinter) Execute(ctx context.Context, run *catalog.Run) error {
	if run.StagedPath == "" && run.SourceAssetID != nil {
		return f.refreshExisting(ctx, run)
	}

	data, err := os.ReadFile(run.StagedPath)
	if err != nil {
		return services.Wrap(
			services.ErrInput, "fingerprinting", "read staged file",
			"Unreadable image: the staged file is missing or inaccessible", err)
	}
	return f.fingerprintBytes(ctx, run, data)
}

// refreshExisting handles rescan runs that reference an already protected
// asset. Stored signals are reused verbatim; when none survive on the row
// the original bytes are pulled back from object storage and refingerprinted.
func (f *Fingerprinter) refreshExisting(ctx context.Context, run *catalog.Run) error {
	logger := logging.WithContext(ctx, f.logger)
	asset, err := f.store.GetSourceAsset(ctx, *run.SourceAssetID)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "fingerprinting", "load asset", "Failed to load the protected asset", err)
	}
	if asset == nil {
		return services.Wrap(
			services.ErrNotFound, "fingerprinting", "load asset",
			"Protected asset no longer exists; submit the image again", nil)
	}

	if asset.Fingerprinted() {
		fp := fingerprint.Fingerprint{PHash: asset.PHash, Caption: asset.Caption}
		vec, err := embedding.DecodeVector(asset.EmbeddingJSON)
		if err != nil {
			logger.Warn("stored embedding is corrupt, rescanning without it", logging.Error(err))
		} else {
			fp.Embedding = vec
		}
		payload, err := stage.EncodeFingerprint(&fp)
		if err != nil {
			return err
		}
		run.FingerprintJSON = payload
		run.SetProgress("Fingerprinting", "Reusing stored fingerprint", 100)
		logger.Info("reusing stored fingerprint", logging.Int64(logging.FieldAssetID, asset.ID))
		return nil
	}

	body, err := f.objects.Get(ctx, asset.StorageKey)
	if err != nil {
		return services.Wrap(
			services.ErrNotFound, "fingerprinting", "load original",
			"Original image is no longer in object storage; submit it again", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "fingerprinting", "read original", "Failed to read the stored original", err)
	}
	return f.fingerprintBytes(ctx, run, data)
}

func (f *Fingerprinter) fingerprintBytes(ctx context.Context, run *catalog.Run, data []byte) error {
	logger := logging.WithContext(ctx, f.logger)

	fp, err := f.engine.FingerprintBytes(ctx, data)
	if err != nil {
		return err
	}
	updateProgress(ctx, f.store, f.logger, run, "Registering protected asset", 60)

	asset, created, err := f.registerAsset(ctx, run.Owner, run.OriginalFilename, data, fp)
	if err != nil {
		return err
	}

	payload, err := stage.EncodeFingerprint(fp)
	if err != nil {
		return err
	}
	run.FingerprintJSON = payload
	run.SourceAssetID = &asset.ID
	run.SetProgress("Fingerprinting", "Fingerprint ready", 100)

	logger.Info(
		"fingerprinting completed",
		logging.Int64(logging.FieldAssetID, asset.ID),
		logging.Bool("asset_created", created),
		logging.String("sha256", asset.SHA256),
		logging.String("phash", fp.PHash),
		logging.Int("embedding_dim", len(fp.Embedding)),
		logging.Bool("captioned", fp.Caption != ""),
	)
	return nil
}

// Ingest fingerprints raw image bytes and registers them as a protected
// source asset without a pipeline run. The protect workflow admits images
// through here that are never scanned.
func (f *Fingerprinter) Ingest(ctx context.Context, owner, filename string, data []byte) (*catalog.SourceAsset, bool, error) {
	fp, err := f.engine.FingerprintBytes(ctx, data)
	if err != nil {
		return nil, false, err
	}
	return f.registerAsset(ctx, owner, filename, data, fp)
}

// registerAsset persists the asset row keyed on (owner, sha256), uploads
// the original when object storage does not hold it yet, and stores the
// computed signals on the row.
func (f *Fingerprinter) registerAsset(ctx context.Context, owner, filename string, data []byte, fp *fingerprint.Fingerprint) (*catalog.SourceAsset, bool, error) {
	contentType := fingerprint.DetectImageType(data)
	sha := fingerprint.BytesSHA256(data)

	key := storage.ObjectKey(owner, storage.PurposeOriginals, fingerprint.ExtensionForType(contentType))
	asset, created, err := f.store.EnsureSourceAsset(ctx, &catalog.SourceAsset{
		Owner:            owner,
		StorageKey:       key,
		OriginalFilename: filename,
		ContentType:      contentType,
		SHA256:           sha,
	})
	if err != nil {
		return nil, false, services.Wrap(services.ErrPersistence, "fingerprinting", "register asset", "Failed to register the protected asset", err)
	}

	// A retried run may have registered the row before the upload landed,
	// so presence of the object decides the upload, not row creation.
	exists, err := f.objects.Exists(ctx, asset.StorageKey)
	if err != nil {
		return nil, false, services.Wrap(services.ErrPersistence, "fingerprinting", "check original", "Failed to check object storage for the original", err)
	}
	if !exists {
		if err := f.objects.Put(ctx, asset.StorageKey, bytes.NewReader(data), contentType); err != nil {
			return nil, false, services.Wrap(services.ErrPersistence, "fingerprinting", "store original", "Failed to store the original image", err)
		}
	}

	asset.PHash = fp.PHash
	asset.Caption = fp.Caption
	if len(fp.Embedding) > 0 {
		encoded, err := embedding.EncodeVector(fp.Embedding)
		if err != nil {
			return nil, false, services.Wrap(services.ErrPersistence, "fingerprinting", "encode embedding", "Failed to encode the embedding", err)
		}
		asset.EmbeddingJSON = encoded
	}
	if err := f.store.UpdateSourceAsset(ctx, asset); err != nil {
		return nil, false, services.Wrap(services.ErrPersistence, "fingerprinting", "persist fingerprint", "Failed to persist fingerprint signals", err)
	}
	return asset, created, nil
}

// HealthCheck verifies the fingerprinting prerequisites.
func (f *Fingerprinter) HealthCheck(ctx context.Context) stage.Health {
	const name = "fingerprinter"
	if f.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if f.engine == nil {
		return stage.Unhealthy(name, "fingerprint engine unavailable")
	}
	if f.objects == nil {
		return stage.Unhealthy(name, "object storage unavailable")
	}
	if strings.TrimSpace(f.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	return stage.Healthy(name)
}
