package fingerprint

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"os"

	"pixguard/internal/config"
	"pixguard/internal/embedding"
	"pixguard/internal/logging"
	"pixguard/internal/services"
)

// Captioner produces a short text description of an image. Implementations
// call out to a vision-capable LLM, so failures are expected and tolerated.
type Captioner interface {
	Caption(ctx context.Context, imageData []byte, contentType string) (string, error)
}

// Fingerprint carries the signals extracted from one image. Either PHash or
// Embedding may be absent, never both.
type Fingerprint struct {
	PHash     string    `json:"phash,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Caption   string    `json:"caption,omitempty"`
}

// HasSignals reports whether at least one matchable signal was produced.
func (f *Fingerprint) HasSignals() bool {
	return f != nil && (f.PHash != "" || len(f.Embedding) > 0)
}

// Engine computes fingerprints from staged image files. Model resources are
// loaded lazily through the embedding provider on first use.
type Engine struct {
	models         *embedding.Lazy
	captioner      Captioner
	captionEnabled bool
	logger         *slog.Logger
}

// NewEngine wires the engine from configuration. captioner may be nil, in
// which case captions are skipped entirely.
func NewEngine(cfg *config.Config, models *embedding.Lazy, captioner Captioner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		models:         models,
		captioner:      captioner,
		captionEnabled: cfg.Fingerprint.CaptionEnabled,
		logger:         logging.NewComponentLogger(logger, "fingerprint"),
	}
}

// FingerprintFile reads and fingerprints a staged image file.
func (e *Engine) FingerprintFile(ctx context.Context, path string) (*Fingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrInput, "fingerprinting", "read", "read staged image", err)
	}
	return e.FingerprintBytes(ctx, data)
}

// FingerprintBytes fingerprints raw image bytes. The perceptual hash and the
// embedding are computed independently; the call fails only when neither
// signal could be produced. Caption failures degrade to an empty caption.
func (e *Engine) FingerprintBytes(ctx context.Context, data []byte) (*Fingerprint, error) {
	contentType := DetectImageType(data)
	if !IsSupportedImageType(contentType) {
		return nil, services.Wrap(
			services.ErrInput,
			"fingerprinting",
			"detect",
			"unsupported content type "+contentType,
			nil,
		)
	}

	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, services.Wrap(services.ErrInput, "fingerprinting", "decode", "corrupt or truncated image", err)
	}

	result := &Fingerprint{}

	phash, phashErr := ComputePHash(img)
	if phashErr == nil {
		result.PHash = phash
	} else {
		e.logger.Warn("perceptual hash failed", logging.Error(phashErr))
	}

	embedErr := e.embed(ctx, result, img)
	if embedErr != nil {
		e.logger.Warn("embedding failed", logging.Error(embedErr))
	}

	if !result.HasSignals() {
		return nil, services.Wrap(
			services.ErrInput,
			"fingerprinting",
			"signals",
			"no usable fingerprint signal",
			errors.Join(phashErr, embedErr),
		)
	}

	if e.captionEnabled && e.captioner != nil {
		caption, err := e.captioner.Caption(ctx, data, contentType)
		if err != nil {
			// Captions only strengthen text matching; never fail the run.
			e.logger.Warn("caption failed, continuing without one", logging.Error(err))
		} else {
			result.Caption = caption
		}
	}

	return result, nil
}

func (e *Engine) embed(ctx context.Context, result *Fingerprint, img image.Image) error {
	if e.models == nil {
		return errors.New("no embedding provider configured")
	}
	provider, err := e.models.Get()
	if err != nil {
		return err
	}
	vec, err := provider.EmbedImage(ctx, img)
	if err != nil {
		return err
	}
	result.Embedding = vec
	return nil
}

// EmbedCaption embeds previously captured caption text for text-based
// candidate scoring.
func (e *Engine) EmbedCaption(ctx context.Context, caption string) ([]float32, error) {
	if caption == "" {
		return nil, nil
	}
	if e.models == nil {
		return nil, errors.New("no embedding provider configured")
	}
	provider, err := e.models.Get()
	if err != nil {
		return nil, err
	}
	return provider.EmbedText(ctx, caption)
}
