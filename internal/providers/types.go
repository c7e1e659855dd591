package providers

import (
	"context"
	"encoding/json"
)

// Tristate models a commercial-sale signal that may be unknown. Search
// results rarely prove an item is NOT for sale, so absence of evidence maps
// to TristateUnknown rather than TristateNo.
type Tristate string

const (
	TristateUnknown Tristate = "unknown"
	TristateYes     Tristate = "yes"
	TristateNo      Tristate = "no"
)

// Candidate is one raw, unscored search result. It is transient: the scorer
// consumes candidates immediately and only qualifying ones are persisted,
// folded into a Match row together with the raw payload for audit.
type Candidate struct {
	Provider     string `json:"provider"`
	ImageURL     string `json:"image_url,omitempty"`
	PageURL      string `json:"page_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Title        string `json:"title,omitempty"`
	Snippet      string `json:"snippet,omitempty"`
	SourceName   string `json:"source_name,omitempty"`
	SourceDomain string `json:"source_domain,omitempty"`
	Position     int    `json:"position,omitempty"`

	// Similarity is only meaningful when SimilarityKnown is set: external
	// engines report an estimate for direct image hits, and the corpus
	// source emits pre-scored candidates.
	Similarity      float64 `json:"similarity,omitempty"`
	SimilarityKnown bool    `json:"similarity_known,omitempty"`

	ForSale  Tristate `json:"for_sale,omitempty"`
	Price    string   `json:"price,omitempty"`
	Currency string   `json:"currency,omitempty"`

	// BestGuess is the engine's guessed subject for the whole query, not
	// for this specific result.
	BestGuess string `json:"best_guess,omitempty"`

	// InternalAssetID is set for corpus candidates instead of a URL.
	InternalAssetID int64 `json:"internal_asset_id,omitempty"`

	// Embedding carries the candidate's own vector when one is on file,
	// letting the scorer recompute the image score from raw signals
	// instead of trusting the reported similarity. It rides along in the
	// run payload between stages but stays out of API responses.
	Embedding []float32 `json:"embedding,omitempty"`

	// Basis names the signal behind a known similarity: "provider",
	// "embedding" or "phash".
	Basis string `json:"basis,omitempty"`

	// Raw preserves the provider's original payload verbatim for audit.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// TargetURL returns the best URL identifying the matched asset: the direct
// image when known, otherwise the containing page.
func (c *Candidate) TargetURL() string {
	if c.ImageURL != "" {
		return c.ImageURL
	}
	return c.PageURL
}

// Resolvable reports whether the candidate identifies anything at all. A
// record with neither a URL nor an internal asset reference is dropped.
func (c *Candidate) Resolvable() bool {
	return c.TargetURL() != "" || c.InternalAssetID != 0
}

// Text returns the candidate's textual description for text-embedding
// comparison against the fingerprint caption.
func (c *Candidate) Text() string {
	switch {
	case c.Title != "" && c.Snippet != "":
		return c.Title + " " + c.Snippet
	case c.Title != "":
		return c.Title
	default:
		return c.Snippet
	}
}

// Query carries the signals a source may search by. Sources use whichever
// fields they understand and ignore the rest.
type Query struct {
	AssetID   int64
	ImageURL  string
	PHash     string
	Embedding []float32
	Caption   string
	Limit     int
}

// Source produces candidates for one provider. Implementations must honor
// ctx cancellation and truncate to Query.Limit when it is positive.
type Source interface {
	Name() string
	Search(ctx context.Context, query Query) ([]Candidate, error)
}

// Failure records one source failing while others proceeded.
type Failure struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}
