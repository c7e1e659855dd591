package scoring

import (
	"context"
	"log/slog"
	"sort"

	"pixguard/internal/config"
	"pixguard/internal/embedding"
	"pixguard/internal/fingerprint"
	"pixguard/internal/logging"
	"pixguard/internal/providers"
)

// Thresholds hold the minimum similarity per candidate origin. External
// results need strong evidence before bothering a reviewer; internal corpus
// hits are surfaced much more aggressively. All thresholds are inclusive.
type Thresholds struct {
	External float64
	Internal float64
	Text     float64
}

// ThresholdsFromConfig lifts the scoring section out of the configuration.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		External: cfg.Scoring.ExternalThreshold,
		Internal: cfg.Scoring.InternalThreshold,
		Text:     cfg.Scoring.TextThreshold,
	}
}

// Scored pairs a candidate with its computed signals. Image and text are
// tracked separately with explicit Known flags: a missing signal stays
// omitted and never reads as a zero score.
type Scored struct {
	Candidate  providers.Candidate `json:"candidate"`
	ImageScore float64             `json:"image_score"`
	ImageKnown bool                `json:"image_known"`
	TextScore  float64             `json:"text_score"`
	TextKnown  bool                `json:"text_known"`

	// Score and Basis describe the candidate's strongest signal,
	// preferring a qualifying one. Basis is one of "provider",
	// "embedding", "phash" or "caption".
	Score     float64 `json:"score"`
	Basis     string  `json:"basis"`
	Qualified bool    `json:"qualified"`
}

// Scorer ranks candidates against a source fingerprint.
type Scorer struct {
	thresholds Thresholds
	models     *embedding.Lazy
	logger     *slog.Logger
}

// NewScorer builds a scorer from configuration. models may be nil when no
// text tower is available; image scoring works without it.
func NewScorer(cfg *config.Config, models *embedding.Lazy, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scorer{
		thresholds: ThresholdsFromConfig(cfg),
		models:     models,
		logger:     logging.NewComponentLogger(logger, "scoring"),
	}
}

// ScoreAll scores every candidate and returns them qualified-first,
// strongest-first. Text scoring requires both a caption on the fingerprint
// and a working text tower; when either is missing the image signal decides
// alone. A single candidate's text embedding failing never aborts the batch.
func (s *Scorer) ScoreAll(ctx context.Context, fp *fingerprint.Fingerprint, candidates []providers.Candidate) ([]Scored, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var embedder embedding.TextEmbedder
	var captionVec []float32
	if fp.Caption != "" && s.models != nil {
		provider, err := s.models.Get()
		if err != nil {
			s.logger.Warn("text tower unavailable, scoring on image signals only", logging.Error(err))
		} else if vec, embedErr := provider.EmbedText(ctx, fp.Caption); embedErr != nil {
			s.logger.Warn("caption embedding failed, scoring on image signals only", logging.Error(embedErr))
		} else {
			embedder = provider
			captionVec = vec
		}
	}

	scored := make([]Scored, 0, len(candidates))
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scored = append(scored, s.scoreOne(ctx, fp, candidate, embedder, captionVec))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Qualified != scored[j].Qualified {
			return scored[i].Qualified
		}
		return scored[i].Score > scored[j].Score
	})
	return scored, nil
}

func (s *Scorer) scoreOne(ctx context.Context, fp *fingerprint.Fingerprint, candidate providers.Candidate, embedder embedding.TextEmbedder, captionVec []float32) Scored {
	out := Scored{Candidate: candidate}

	if len(candidate.Embedding) > 0 && len(fp.Embedding) > 0 {
		if cos, err := embedding.Cosine(fp.Embedding, candidate.Embedding); err != nil {
			s.logger.Debug("candidate embedding unusable",
				logging.String(logging.FieldProvider, candidate.Provider),
				logging.Error(err))
		} else {
			out.ImageScore = embedding.Clamp01(cos)
			out.ImageKnown = true
		}
	}
	if !out.ImageKnown && candidate.SimilarityKnown {
		out.ImageScore = embedding.Clamp01(candidate.Similarity)
		out.ImageKnown = true
	}

	if len(captionVec) > 0 && embedder != nil {
		if text := candidate.Text(); text != "" {
			if vec, err := embedder.EmbedText(ctx, text); err != nil {
				s.logger.Warn("candidate text embedding failed",
					logging.String(logging.FieldProvider, candidate.Provider),
					logging.Error(err))
			} else if cos, cosErr := embedding.Cosine(captionVec, vec); cosErr != nil {
				s.logger.Debug("text comparison failed", logging.Error(cosErr))
			} else {
				out.TextScore = embedding.Clamp01(cos)
				out.TextKnown = true
			}
		}
	}

	imageThreshold := s.thresholds.External
	if candidate.InternalAssetID != 0 {
		imageThreshold = s.thresholds.Internal
	}
	imageQualifies := out.ImageKnown && out.ImageScore >= imageThreshold
	textQualifies := out.TextKnown && out.TextScore >= s.thresholds.Text
	out.Qualified = imageQualifies || textQualifies

	switch {
	case imageQualifies && textQualifies:
		if out.TextScore > out.ImageScore {
			out.Score, out.Basis = out.TextScore, "caption"
		} else {
			out.Score, out.Basis = out.ImageScore, imageBasis(candidate)
		}
	case imageQualifies:
		out.Score, out.Basis = out.ImageScore, imageBasis(candidate)
	case textQualifies:
		out.Score, out.Basis = out.TextScore, "caption"
	case out.ImageKnown && (!out.TextKnown || out.ImageScore >= out.TextScore):
		out.Score, out.Basis = out.ImageScore, imageBasis(candidate)
	case out.TextKnown:
		out.Score, out.Basis = out.TextScore, "caption"
	}
	return out
}

func imageBasis(candidate providers.Candidate) string {
	if candidate.Basis != "" {
		return candidate.Basis
	}
	return "provider"
}

// Qualified filters scored candidates down to the ones worth persisting.
func Qualified(scored []Scored) []Scored {
	out := make([]Scored, 0, len(scored))
	for _, item := range scored {
		if item.Qualified {
			out = append(out, item)
		}
	}
	return out
}
