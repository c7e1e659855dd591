package providers

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/embedding"
	"pixguard/internal/fingerprint"
	"pixguard/internal/logging"
	"pixguard/internal/services"
)

const corpusName = "corpus"

// CorpusSource compares the query fingerprint against every other
// fingerprinted asset in the local catalog. It never leaves the process, so
// it keeps working when the external provider is down.
type CorpusSource struct {
	store       *catalog.Store
	threshold   float64
	maxDistance int
	limit       int
	logger      *slog.Logger
}

// NewCorpusSource builds the internal duplicate scanner from configuration.
func NewCorpusSource(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *CorpusSource {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CorpusSource{
		store:       store,
		threshold:   cfg.Scoring.InternalThreshold,
		maxDistance: cfg.Fingerprint.PHashMaxDistance,
		limit:       cfg.Providers.CorpusLimit,
		logger:      logging.NewComponentLogger(logger, "corpus"),
	}
}

func (s *CorpusSource) Name() string { return corpusName }

// corpusEvidence is the raw payload persisted alongside a corpus candidate so
// a reviewer can see which signal matched and how strongly.
type corpusEvidence struct {
	AssetID       int64    `json:"asset_id"`
	Cosine        *float64 `json:"cosine,omitempty"`
	PHashDistance *int     `json:"phash_distance,omitempty"`
}

// Search scans fingerprinted assets owned by anyone except the query asset
// itself. An asset qualifies when its embedding cosine reaches the internal
// threshold or its perceptual hash is within the Hamming distance ceiling.
func (s *CorpusSource) Search(ctx context.Context, query Query) ([]Candidate, error) {
	if len(query.Embedding) == 0 && query.PHash == "" {
		return nil, nil
	}

	assets, err := s.store.FingerprintedAssets(ctx, query.AssetID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "fetching", corpusName, "list fingerprinted assets", err)
	}

	candidates := make([]Candidate, 0, len(assets))
	for _, asset := range assets {
		var (
			best      float64
			basis     string
			qualified bool
			assetVec  []float32
			evidence  = corpusEvidence{AssetID: asset.ID}
		)

		if len(query.Embedding) > 0 && asset.EmbeddingJSON != "" {
			vec, decodeErr := embedding.DecodeVector(asset.EmbeddingJSON)
			if decodeErr != nil {
				s.logger.Warn("skipping asset with unreadable embedding",
					logging.Int64(logging.FieldAssetID, asset.ID),
					logging.Error(decodeErr))
			} else if cos, cosErr := embedding.Cosine(query.Embedding, vec); cosErr != nil {
				s.logger.Debug("embedding comparison failed",
					logging.Int64(logging.FieldAssetID, asset.ID),
					logging.Error(cosErr))
			} else {
				score := embedding.Clamp01(cos)
				evidence.Cosine = &score
				if score >= s.threshold {
					qualified = true
				}
				if score > best {
					best, basis = score, "embedding"
					assetVec = vec
				}
			}
		}

		if query.PHash != "" && asset.PHash != "" {
			dist, distErr := fingerprint.HammingDistance(query.PHash, asset.PHash)
			if distErr != nil {
				s.logger.Debug("phash comparison failed",
					logging.Int64(logging.FieldAssetID, asset.ID),
					logging.Error(distErr))
			} else {
				evidence.PHashDistance = &dist
				if dist <= s.maxDistance {
					qualified = true
					if score := 1 - float64(dist)/64; score > best {
						best, basis = score, "phash"
					}
				}
			}
		}

		if !qualified {
			continue
		}

		raw, _ := json.Marshal(evidence)
		candidate := Candidate{
			Provider:        corpusName,
			Title:           asset.OriginalFilename,
			Position:        len(candidates) + 1,
			Similarity:      best,
			SimilarityKnown: true,
			InternalAssetID: asset.ID,
			Basis:           basis,
			Raw:             raw,
		}
		// A hash-basis match deliberately leaves the vector off: its
		// reported similarity already reflects the stronger signal.
		if basis == "embedding" {
			candidate.Embedding = assetVec
		}
		candidates = append(candidates, candidate)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	limit := s.limit
	if query.Limit > 0 && (limit <= 0 || query.Limit < limit) {
		limit = query.Limit
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for i := range candidates {
		candidates[i].Position = i + 1
	}
	return candidates, nil
}
