package providers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"pixguard/internal/providers"
	"pixguard/internal/services"
	"pixguard/internal/testsupport"
)

const serpAPIFixture = `{
  "search_information": {"best_guess": "mountain landscape print"},
  "image_results": [
    {
      "position": 1,
      "title": "Mountain Landscape Art Print",
      "link": "https://www.etsy.com/listing/123/mountain-print",
      "original": "https://i.etsystatic.com/123/full.jpg",
      "displayed_link": "www.etsy.com › listing",
      "snippet": "Fine art print of a mountain landscape",
      "source": "Etsy",
      "thumbnail": "https://thumbs.example.com/1.jpg",
      "price": {"value": "$12.99", "currency": "USD"}
    },
    {
      "position": 2,
      "title": "Free mountain wallpaper",
      "link": "https://wallpapers.example.org/mountain",
      "snippet": "Download mountain wallpapers"
    }
  ],
  "pages_including_matching_images": [
    {
      "position": 1,
      "title": "Blog post about mountains",
      "link": "https://blog.example.net/mountains",
      "source": "example blog",
      "snippet": "A post embedding the image",
      "matching_images": [
        {"link": "https://blog.example.net/img/mountain.jpg", "thumbnail": "https://blog.example.net/img/t.jpg"}
      ]
    }
  ]
}`

func newSerpAPIServer(t *testing.T, status int, body string) (*httptest.Server, *url.Values) {
	t.Helper()

	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server, &gotQuery
}

func TestSerpAPIParsesBothResultFamilies(t *testing.T) {
	server, gotQuery := newSerpAPIServer(t, http.StatusOK, serpAPIFixture)
	cfg := testsupport.NewConfig(t, testsupport.WithSerpAPI(server.URL, "test-key"))
	source := providers.NewSerpAPISource(cfg, nil)

	candidates, err := source.Search(context.Background(), providers.Query{
		ImageURL: "https://cdn.example.com/stored.png",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if got := gotQuery.Get("engine"); got != "google_reverse_image" {
		t.Fatalf("engine param = %q", got)
	}
	if got := gotQuery.Get("image_url"); got != "https://cdn.example.com/stored.png" {
		t.Fatalf("image_url param = %q", got)
	}
	if got := gotQuery.Get("api_key"); got != "test-key" {
		t.Fatalf("api_key param = %q", got)
	}

	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}

	etsy := candidates[0]
	if etsy.ImageURL != "https://i.etsystatic.com/123/full.jpg" {
		t.Fatalf("direct hit image url = %q", etsy.ImageURL)
	}
	if etsy.PageURL != "https://www.etsy.com/listing/123/mountain-print" {
		t.Fatalf("direct hit page url = %q", etsy.PageURL)
	}
	if !etsy.SimilarityKnown || etsy.Similarity != 0.85 {
		t.Fatalf("direct hit similarity = %v (known %v)", etsy.Similarity, etsy.SimilarityKnown)
	}
	if etsy.ForSale != providers.TristateYes {
		t.Fatalf("priced listing should read for-sale, got %q", etsy.ForSale)
	}
	if etsy.Price != "$12.99" || etsy.Currency != "USD" {
		t.Fatalf("price = %q %q", etsy.Price, etsy.Currency)
	}
	if etsy.SourceDomain != "etsy.com" {
		t.Fatalf("source domain = %q", etsy.SourceDomain)
	}
	if etsy.BestGuess != "mountain landscape print" {
		t.Fatalf("best guess = %q", etsy.BestGuess)
	}
	if len(etsy.Raw) == 0 {
		t.Fatal("raw payload not preserved")
	}

	wallpaper := candidates[1]
	if wallpaper.ForSale != providers.TristateUnknown {
		t.Fatalf("unpriced non-marketplace hit should be unknown, got %q", wallpaper.ForSale)
	}
	if wallpaper.SourceDomain != "wallpapers.example.org" {
		t.Fatalf("source domain = %q", wallpaper.SourceDomain)
	}

	page := candidates[2]
	if page.Similarity != 0.80 {
		t.Fatalf("page hit similarity = %v", page.Similarity)
	}
	if page.ImageURL != "https://blog.example.net/img/mountain.jpg" {
		t.Fatalf("page hit should lift the matching image url, got %q", page.ImageURL)
	}
	if page.PageURL != "https://blog.example.net/mountains" {
		t.Fatalf("page hit page url = %q", page.PageURL)
	}
}

func TestSerpAPIMarketplaceDomainImpliesSale(t *testing.T) {
	body := `{"image_results": [
		{"position": 1, "title": "Listing", "link": "https://www.ebay.com/itm/42"}
	]}`
	server, _ := newSerpAPIServer(t, http.StatusOK, body)
	cfg := testsupport.NewConfig(t, testsupport.WithSerpAPI(server.URL, "test-key"))
	source := providers.NewSerpAPISource(cfg, nil)

	candidates, err := source.Search(context.Background(), providers.Query{ImageURL: "https://cdn.example.com/x.png"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].ForSale != providers.TristateYes {
		t.Fatalf("marketplace domain without price should still read for-sale, got %q", candidates[0].ForSale)
	}
}

func TestSerpAPIErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, "authentication rejected"},
		{"forbidden", http.StatusForbidden, `{}`, "authentication rejected"},
		{"rate limited", http.StatusTooManyRequests, `{}`, "rate limited"},
		{"server error", http.StatusInternalServerError, `upstream exploded`, "http 500"},
		{"malformed body", http.StatusOK, `{"image_results": [`, "malformed response"},
		{"error payload", http.StatusOK, `{"error": "Invalid API key."}`, "Invalid API key."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server, _ := newSerpAPIServer(t, tc.status, tc.body)
			cfg := testsupport.NewConfig(t, testsupport.WithSerpAPI(server.URL, "test-key"))
			source := providers.NewSerpAPISource(cfg, nil)

			_, err := source.Search(context.Background(), providers.Query{ImageURL: "https://cdn.example.com/x.png"})
			if !errors.Is(err, services.ErrProvider) {
				t.Fatalf("expected provider error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not contain %q", err, tc.want)
			}
		})
	}
}

func TestSerpAPIRequiresPublicImageURL(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithSerpAPI(server.URL, "test-key"))
	source := providers.NewSerpAPISource(cfg, nil)

	_, err := source.Search(context.Background(), providers.Query{})
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if called {
		t.Fatal("no request should leave the process without an image url")
	}
}

func TestSerpAPIRequiresAPIKey(t *testing.T) {
	server, _ := newSerpAPIServer(t, http.StatusOK, serpAPIFixture)
	cfg := testsupport.NewConfig(t, testsupport.WithSerpAPI(server.URL, ""))
	source := providers.NewSerpAPISource(cfg, nil)

	_, err := source.Search(context.Background(), providers.Query{ImageURL: "https://cdn.example.com/x.png"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSerpAPITruncatesToQueryLimit(t *testing.T) {
	body := `{"image_results": [
		{"position": 1, "title": "a", "link": "https://example.com/1"},
		{"position": 2, "title": "b", "link": "https://example.com/2"},
		{"position": 3, "title": "c", "link": "https://example.com/3"}
	]}`
	server, gotQuery := newSerpAPIServer(t, http.StatusOK, body)
	cfg := testsupport.NewConfig(t, testsupport.WithSerpAPI(server.URL, "test-key"))
	source := providers.NewSerpAPISource(cfg, nil)

	candidates, err := source.Search(context.Background(), providers.Query{
		ImageURL: "https://cdn.example.com/x.png",
		Limit:    2,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates after truncation, got %d", len(candidates))
	}
	if got := gotQuery.Get("num"); got != "2" {
		t.Fatalf("num param = %q, want 2", got)
	}
}

func TestSerpAPIDropsRecordsWithoutAnyURL(t *testing.T) {
	body := `{"image_results": [
		{"position": 1, "title": "has url", "link": "https://example.com/1"},
		{"position": 2, "title": "no url at all"}
	]}`
	server, _ := newSerpAPIServer(t, http.StatusOK, body)
	cfg := testsupport.NewConfig(t, testsupport.WithSerpAPI(server.URL, "test-key"))
	source := providers.NewSerpAPISource(cfg, nil)

	candidates, err := source.Search(context.Background(), providers.Query{ImageURL: "https://cdn.example.com/x.png"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected the url-less record dropped, got %d candidates", len(candidates))
	}
	if candidates[0].Title != "has url" {
		t.Fatalf("kept the wrong record: %q", candidates[0].Title)
	}
}
