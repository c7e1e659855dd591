package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/embedding"
	"pixguard/internal/logging"
	"pixguard/internal/pipeline"
	"pixguard/internal/services"
	"pixguard/internal/storage"
)

// ScanDependencies carries the heavyweight collaborators the scan workflows
// need. The daemon passes its shared instances so the inference runtime
// loads once per process; the CLI leaves fields nil and they are built from
// configuration on demand.
type ScanDependencies struct {
	Models        *embedding.Lazy
	Objects       storage.Backend
	Fingerprinter *pipeline.Fingerprinter
	Runner        *pipeline.Runner
}

type ProtectImageRequest struct {
	Config *config.Config
	Store  *catalog.Store
	Logger *slog.Logger
	Deps   ScanDependencies

	// Path names an image on disk. Alternatively Data carries the image
	// bytes directly (HTTP uploads), with Filename as the display name.
	Path     string
	Data     []byte
	Filename string
	Owner    string
}

type ProtectImageResult struct {
	Asset   *catalog.SourceAsset
	Created bool
}

// ProtectImage registers an image as a protected source asset without
// scanning it. Re-protecting identical bytes for the same owner returns
// the existing asset.
func ProtectImage(ctx context.Context, req ProtectImageRequest) (ProtectImageResult, error) {
	cfg := req.Config
	if cfg == nil {
		return ProtectImageResult{}, fmt.Errorf("configuration is required")
	}
	if req.Store == nil {
		return ProtectImageResult{}, fmt.Errorf("catalog store is required")
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	owner, err := requireOwner(req.Owner)
	if err != nil {
		return ProtectImageResult{}, err
	}

	data := req.Data
	filename := strings.TrimSpace(req.Filename)
	if data == nil {
		data, err = os.ReadFile(req.Path)
		if err != nil {
			return ProtectImageResult{}, services.Wrap(
				services.ErrInput, "protect", "read image",
				"Unreadable image: "+req.Path, err)
		}
		if filename == "" {
			filename = filepath.Base(req.Path)
		}
	}
	if len(data) == 0 {
		return ProtectImageResult{}, services.Wrap(
			services.ErrInput, "protect", "read image",
			"Image is empty", nil)
	}

	fingerprinter := req.Deps.Fingerprinter
	if fingerprinter == nil {
		objects, err := resolveObjects(ctx, cfg, req.Deps)
		if err != nil {
			return ProtectImageResult{}, err
		}
		fingerprinter = pipeline.NewFingerprinter(cfg, req.Store, logger, resolveModels(cfg, req.Deps), objects)
	}

	asset, created, err := fingerprinter.Ingest(ctx, owner, filename, data)
	if err != nil {
		return ProtectImageResult{}, err
	}
	logger.Info(
		"image protected",
		logging.Int64(logging.FieldAssetID, asset.ID),
		logging.String(logging.FieldOwner, owner),
		logging.Bool("created", created),
	)
	return ProtectImageResult{Asset: asset, Created: created}, nil
}

type ScanImageRequest struct {
	Config *config.Config
	Store  *catalog.Store
	Logger *slog.Logger
	Deps   ScanDependencies
	Path   string
	Owner  string
	Wait   bool
}

// ScanImageResult carries either the queued run (asynchronous submission)
// or the terminal scan result (synchronous).
type ScanImageResult struct {
	Queued *Run
	Result *ScanResult
}

// ScanImage stages an image and scans it for infringing copies. Without
// Wait the run is queued for the daemon and returned immediately; with Wait
// the pipeline runs in-process and the terminal result is returned.
func ScanImage(ctx context.Context, req ScanImageRequest) (*ScanImageResult, error) {
	cfg := req.Config
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if req.Store == nil {
		return nil, fmt.Errorf("catalog store is required")
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	owner, err := requireOwner(req.Owner)
	if err != nil {
		return nil, err
	}

	src, err := os.Open(req.Path)
	if err != nil {
		return nil, services.Wrap(
			services.ErrInput, "scan", "open image",
			"Unreadable image: "+req.Path, err)
	}
	defer src.Close()

	filename := filepath.Base(req.Path)
	staged, err := StageUpload(cfg, filename, src)
	if err != nil {
		return nil, err
	}

	if !req.Wait {
		run, err := req.Store.NewRun(ctx, owner, filename, staged)
		if err != nil {
			os.Remove(staged)
			return nil, services.Wrap(services.ErrPersistence, "scan", "queue run", "Could not queue the scan", err)
		}
		logger.Info(
			"scan queued",
			logging.Int64(logging.FieldRunID, run.ID),
			logging.String(logging.FieldOwner, owner),
			logging.String("filename", filename),
		)
		dto := FromRun(run)
		return &ScanImageResult{Queued: &dto}, nil
	}

	runner, err := resolveRunner(ctx, cfg, req.Store, logger, req.Deps)
	if err != nil {
		return nil, err
	}
	result, err := runner.Run(ctx, pipeline.Input{Owner: owner, Filename: filename, StagedPath: staged})
	if err != nil {
		return nil, err
	}
	// Failed runs keep their staged copy so a retry can refingerprint it.
	if result.Success {
		os.Remove(staged)
	}
	scan := FromResult(result)
	return &ScanImageResult{Result: &scan}, nil
}

type RescanAssetRequest struct {
	Config  *config.Config
	Store   *catalog.Store
	Logger  *slog.Logger
	Deps    ScanDependencies
	AssetID int64
	Wait    bool
}

// RescanAsset runs the match pipeline again for an already protected asset.
// The stored fingerprint is reused, so no upload is involved.
func RescanAsset(ctx context.Context, req RescanAssetRequest) (*ScanImageResult, error) {
	cfg := req.Config
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if req.Store == nil {
		return nil, fmt.Errorf("catalog store is required")
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	asset, err := req.Store.GetSourceAsset(ctx, req.AssetID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "rescan", "load asset", "Failed to load the protected asset", err)
	}
	if asset == nil {
		return nil, services.Wrap(
			services.ErrNotFound, "rescan", "load asset",
			fmt.Sprintf("Protected asset %d does not exist", req.AssetID), nil)
	}

	if !req.Wait {
		run, err := req.Store.NewRescanRun(ctx, asset.Owner, asset.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrPersistence, "rescan", "queue run", "Could not queue the rescan", err)
		}
		logger.Info(
			"rescan queued",
			logging.Int64(logging.FieldRunID, run.ID),
			logging.Int64(logging.FieldAssetID, asset.ID),
		)
		dto := FromRun(run)
		return &ScanImageResult{Queued: &dto}, nil
	}

	runner, err := resolveRunner(ctx, cfg, req.Store, logger, req.Deps)
	if err != nil {
		return nil, err
	}
	result, err := runner.Run(ctx, pipeline.Input{Owner: asset.Owner, SourceAssetID: asset.ID})
	if err != nil {
		return nil, err
	}
	scan := FromResult(result)
	return &ScanImageResult{Result: &scan}, nil
}

// StageUpload copies an image into the staging directory under a unique
// name. The caller's file handle or multipart part can be released as soon
// as this returns; pipeline stages read only the staged copy.
func StageUpload(cfg *config.Config, originalName string, src io.Reader) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required")
	}
	dir := strings.TrimSpace(cfg.Paths.StagingDir)
	if dir == "" {
		return "", services.Wrap(
			services.ErrConfiguration, "scan", "stage upload",
			"Staging directory is not configured; set staging_dir under [paths]", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrPersistence, "scan", "stage upload", "Could not create the staging directory", err)
	}

	name := uuid.NewString()
	if ext := strings.ToLower(filepath.Ext(originalName)); ext != "" {
		name += ext
	}
	dst := filepath.Join(dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", services.Wrap(services.ErrPersistence, "scan", "stage upload", "Could not stage the upload", err)
	}
	_, err = io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		return "", services.Wrap(services.ErrPersistence, "scan", "stage upload", "Could not stage the upload", err)
	}
	return dst, nil
}

func requireOwner(owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", services.Wrap(services.ErrValidation, "scan", "validate owner", "Owner is required", nil)
	}
	return owner, nil
}

func resolveModels(cfg *config.Config, deps ScanDependencies) *embedding.Lazy {
	if deps.Models != nil {
		return deps.Models
	}
	return embedding.NewLazyFromConfig(cfg)
}

func resolveObjects(ctx context.Context, cfg *config.Config, deps ScanDependencies) (storage.Backend, error) {
	if deps.Objects != nil {
		return deps.Objects, nil
	}
	return storage.FromConfig(ctx, cfg)
}

func resolveRunner(ctx context.Context, cfg *config.Config, store *catalog.Store, logger *slog.Logger, deps ScanDependencies) (*pipeline.Runner, error) {
	if deps.Runner != nil {
		return deps.Runner, nil
	}
	objects, err := resolveObjects(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(cfg, store, logger, resolveModels(cfg, deps), objects), nil
}
