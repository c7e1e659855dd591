// Package pagemeta scrapes lightweight metadata from a candidate's page so
// dossiers can show what a listing claims to be. Scraping is best-effort
// enrichment: callers must tolerate every fetch failing.
package pagemeta

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pixguard/internal/logging"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 2 << 20 // pages larger than 2 MiB are cut off, not rejected
	userAgent      = "Mozilla/5.0 (compatible; pixguard/1.0; +https://github.com/pixguard)"
)

// Meta holds what could be scraped from a page. Empty fields mean the page
// did not expose that datum.
type Meta struct {
	Title       string
	Description string
	ImageURL    string
	SiteName    string
	Price       string
	Currency    string
}

// Fetcher retrieves and parses candidate pages.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewFetcher builds a fetcher with the given per-request timeout; zero
// selects a default.
func NewFetcher(logger *slog.Logger, timeout time.Duration) *Fetcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		logger: logging.NewComponentLogger(logger, "pagemeta"),
	}
}

// Fetch downloads pageURL and extracts OpenGraph, standard meta, and
// microdata price fields.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Meta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch page: http %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return nil, fmt.Errorf("fetch page: not html (%s)", contentType)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return extract(doc), nil
}

func extract(doc *goquery.Document) *Meta {
	meta := &Meta{
		Title:       metaContent(doc, `meta[property="og:title"]`, `meta[name="twitter:title"]`),
		Description: metaContent(doc, `meta[property="og:description"]`, `meta[name="description"]`),
		ImageURL:    metaContent(doc, `meta[property="og:image"]`, `meta[name="twitter:image"]`),
		SiteName:    metaContent(doc, `meta[property="og:site_name"]`),
		Price:       metaContent(doc, `meta[property="product:price:amount"]`, `meta[property="og:price:amount"]`, `meta[itemprop="price"]`),
		Currency:    metaContent(doc, `meta[property="product:price:currency"]`, `meta[property="og:price:currency"]`, `meta[itemprop="priceCurrency"]`),
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return meta
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		if val, ok := doc.Find(selector).First().Attr("content"); ok {
			if v := strings.TrimSpace(val); v != "" {
				return v
			}
		}
	}
	return ""
}
