package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pixguard/internal/config"
	"pixguard/internal/logging"
	"pixguard/internal/services"
)

const serpAPIName = "serpapi"

// Similarity estimates for the two result families the reverse-image engine
// returns. Direct image hits are stronger evidence than pages that merely
// embed a matching image.
const (
	directMatchSimilarity = 0.85
	pageMatchSimilarity   = 0.80
)

var marketplaceHints = []string{
	"etsy.",
	"amazon.",
	"ebay.",
	"aliexpress.",
	"redbubble.",
	"society6.",
	"myshopify.",
}

// SerpAPISource queries a SerpAPI-compatible reverse image search endpoint.
type SerpAPISource struct {
	apiKey        string
	baseURL       string
	maxCandidates int
	client        *http.Client
	logger        *slog.Logger
}

// NewSerpAPISource builds the external search source from configuration.
func NewSerpAPISource(cfg *config.Config, logger *slog.Logger) *SerpAPISource {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.Providers.SerpAPITimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &SerpAPISource{
		apiKey:        cfg.Providers.SerpAPIKey,
		baseURL:       cfg.Providers.SerpAPIBaseURL,
		maxCandidates: cfg.Providers.MaxCandidates,
		client:        &http.Client{Timeout: timeout},
		logger:        logging.NewComponentLogger(logger, "serpapi"),
	}
}

func (s *SerpAPISource) Name() string { return serpAPIName }

// Search issues one reverse-image query and normalizes both result families
// into candidates. Records without any resolvable URL are dropped here.
func (s *SerpAPISource) Search(ctx context.Context, query Query) ([]Candidate, error) {
	if s.apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "fetching", serpAPIName, "api key not configured", nil)
	}
	if query.ImageURL == "" {
		return nil, services.Wrap(services.ErrProvider, "fetching", serpAPIName, "no publicly reachable image url", nil)
	}

	limit := s.maxCandidates
	if query.Limit > 0 && query.Limit < limit {
		limit = query.Limit
	}

	endpoint, err := s.buildURL(query.ImageURL, limit)
	if err != nil {
		return nil, services.Wrap(services.ErrProvider, "fetching", serpAPIName, "build request url", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrProvider, "fetching", serpAPIName, "build request", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrProvider, "fetching", serpAPIName, "search request timed out or failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrProvider, "fetching", serpAPIName, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, services.Wrap(services.ErrProvider, "fetching", serpAPIName, "authentication rejected", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrProvider, "fetching", serpAPIName, "rate limited", nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, services.Wrap(
			services.ErrProvider,
			"fetching",
			serpAPIName,
			fmt.Sprintf("http %d: %s", resp.StatusCode, summarizeBody(body)),
			nil,
		)
	}

	var parsed serpAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, services.Wrap(services.ErrProvider, "fetching", serpAPIName, "malformed response", err)
	}
	if parsed.Error != "" {
		return nil, services.Wrap(services.ErrProvider, "fetching", serpAPIName, parsed.Error, nil)
	}

	return s.normalize(parsed, limit), nil
}

func (s *SerpAPISource) buildURL(imageURL string, limit int) (string, error) {
	parsed, err := url.Parse(s.baseURL)
	if err != nil {
		return "", err
	}
	values := parsed.Query()
	values.Set("engine", "google_reverse_image")
	values.Set("image_url", imageURL)
	values.Set("api_key", s.apiKey)
	if limit > 0 {
		values.Set("num", strconv.Itoa(limit))
	}
	parsed.RawQuery = values.Encode()
	return parsed.String(), nil
}

type serpAPIResponse struct {
	SearchInformation struct {
		BestGuess string `json:"best_guess"`
	} `json:"search_information"`
	ImageResults                 []json.RawMessage `json:"image_results"`
	PagesIncludingMatchingImages []json.RawMessage `json:"pages_including_matching_images"`
	Error                        string            `json:"error"`
}

type serpAPIImageResult struct {
	Position      int          `json:"position"`
	Title         string       `json:"title"`
	Link          string       `json:"link"`
	Original      string       `json:"original"`
	DisplayedLink string       `json:"displayed_link"`
	Snippet       string       `json:"snippet"`
	Source        string       `json:"source"`
	Thumbnail     string       `json:"thumbnail"`
	Price         serpAPIPrice `json:"price"`
}

type serpAPIPageResult struct {
	Position       int    `json:"position"`
	Title          string `json:"title"`
	Link           string `json:"link"`
	Snippet        string `json:"snippet"`
	Source         string `json:"source"`
	MatchingImages []struct {
		Link      string `json:"link"`
		Thumbnail string `json:"thumbnail"`
	} `json:"matching_images"`
}

// serpAPIPrice tolerates both the flat string form ("$12.99") and the
// structured object form some engines return.
type serpAPIPrice struct {
	Value    string
	Currency string
}

func (p *serpAPIPrice) UnmarshalJSON(data []byte) error {
	var flat string
	if err := json.Unmarshal(data, &flat); err == nil {
		p.Value = strings.TrimSpace(flat)
		return nil
	}
	var structured struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &structured); err != nil {
		return err
	}
	p.Value = strings.TrimSpace(structured.Value)
	p.Currency = strings.TrimSpace(structured.Currency)
	return nil
}

func (s *SerpAPISource) normalize(parsed serpAPIResponse, limit int) []Candidate {
	bestGuess := strings.TrimSpace(parsed.SearchInformation.BestGuess)
	candidates := make([]Candidate, 0, len(parsed.ImageResults)+len(parsed.PagesIncludingMatchingImages))

	for _, raw := range parsed.ImageResults {
		if limit > 0 && len(candidates) >= limit {
			break
		}
		var item serpAPIImageResult
		if err := json.Unmarshal(raw, &item); err != nil {
			s.logger.Debug("skipping malformed image result", logging.Error(err))
			continue
		}
		candidate := Candidate{
			Provider:        serpAPIName,
			ImageURL:        item.Original,
			PageURL:         item.Link,
			ThumbnailURL:    item.Thumbnail,
			Title:           strings.TrimSpace(item.Title),
			Snippet:         strings.TrimSpace(item.Snippet),
			SourceName:      strings.TrimSpace(item.Source),
			SourceDomain:    domainOf(item.Link, item.DisplayedLink),
			Position:        item.Position,
			Similarity:      directMatchSimilarity,
			SimilarityKnown: true,
			Price:           item.Price.Value,
			Currency:        item.Price.Currency,
			BestGuess:       bestGuess,
			Basis:           "provider",
			Raw:             raw,
		}
		candidate.ForSale = saleSignal(candidate.SourceDomain, candidate.Price)
		if !candidate.Resolvable() {
			continue
		}
		candidates = append(candidates, candidate)
	}

	for _, raw := range parsed.PagesIncludingMatchingImages {
		if limit > 0 && len(candidates) >= limit {
			break
		}
		var item serpAPIPageResult
		if err := json.Unmarshal(raw, &item); err != nil {
			s.logger.Debug("skipping malformed page result", logging.Error(err))
			continue
		}
		candidate := Candidate{
			Provider:        serpAPIName,
			PageURL:         item.Link,
			Title:           strings.TrimSpace(item.Title),
			Snippet:         strings.TrimSpace(item.Snippet),
			SourceName:      strings.TrimSpace(item.Source),
			SourceDomain:    domainOf(item.Link, ""),
			Position:        item.Position,
			Similarity:      pageMatchSimilarity,
			SimilarityKnown: true,
			BestGuess:       bestGuess,
			Basis:           "provider",
			Raw:             raw,
		}
		if len(item.MatchingImages) > 0 {
			candidate.ImageURL = item.MatchingImages[0].Link
			candidate.ThumbnailURL = item.MatchingImages[0].Thumbnail
		}
		candidate.ForSale = saleSignal(candidate.SourceDomain, candidate.Price)
		if !candidate.Resolvable() {
			continue
		}
		candidates = append(candidates, candidate)
	}

	return candidates
}

// domainOf extracts a hostname from the result link, falling back to the
// engine's displayed link ("www.etsy.com › listing › ...").
func domainOf(link, displayed string) string {
	if link != "" {
		if parsed, err := url.Parse(link); err == nil && parsed.Hostname() != "" {
			return strings.TrimPrefix(parsed.Hostname(), "www.")
		}
	}
	displayed = strings.TrimSpace(displayed)
	if displayed == "" {
		return ""
	}
	for _, sep := range []string{" › ", " > ", "/"} {
		if idx := strings.Index(displayed, sep); idx > 0 {
			displayed = displayed[:idx]
			break
		}
	}
	return strings.TrimPrefix(strings.TrimSpace(displayed), "www.")
}

func saleSignal(domain, price string) Tristate {
	if price != "" {
		return TristateYes
	}
	lower := strings.ToLower(domain)
	for _, hint := range marketplaceHints {
		if strings.Contains(lower, hint) {
			return TristateYes
		}
	}
	return TristateUnknown
}

func summarizeBody(body []byte) string {
	text := strings.Join(strings.Fields(string(body)), " ")
	const maxLen = 160
	if len(text) > maxLen {
		return text[:maxLen] + "..."
	}
	return text
}
