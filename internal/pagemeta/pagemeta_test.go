package pagemeta_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"pixguard/internal/pagemeta"
)

const listingHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Fallback Title - Shop</title>
  <meta property="og:title" content="Watercolor Fox Art Print">
  <meta property="og:description" content="Hand painted fox, printed on archival paper.">
  <meta property="og:image" content="https://cdn.shop.example/fox-large.jpg">
  <meta property="og:site_name" content="Example Shop">
  <meta property="product:price:amount" content="12.99">
  <meta property="product:price:currency" content="USD">
</head>
<body><h1>Listing</h1></body>
</html>`

func serve(t *testing.T, contentType, body string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchExtractsOpenGraphAndPrice(t *testing.T) {
	server := serve(t, "text/html; charset=utf-8", listingHTML, http.StatusOK)
	fetcher := pagemeta.NewFetcher(nil, 0)

	meta, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.Title != "Watercolor Fox Art Print" {
		t.Fatalf("title = %q", meta.Title)
	}
	if meta.Description != "Hand painted fox, printed on archival paper." {
		t.Fatalf("description = %q", meta.Description)
	}
	if meta.ImageURL != "https://cdn.shop.example/fox-large.jpg" {
		t.Fatalf("image = %q", meta.ImageURL)
	}
	if meta.SiteName != "Example Shop" {
		t.Fatalf("site name = %q", meta.SiteName)
	}
	if meta.Price != "12.99" || meta.Currency != "USD" {
		t.Fatalf("price = %q %q", meta.Price, meta.Currency)
	}
}

func TestFetchFallsBackToTitleTag(t *testing.T) {
	server := serve(t, "text/html", `<html><head><title> Bare Page </title></head><body></body></html>`, http.StatusOK)
	fetcher := pagemeta.NewFetcher(nil, 0)

	meta, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.Title != "Bare Page" {
		t.Fatalf("title = %q, want the trimmed <title> text", meta.Title)
	}
	if meta.Price != "" || meta.ImageURL != "" {
		t.Fatalf("absent fields should stay empty: %+v", meta)
	}
}

func TestFetchRejectsNonHTML(t *testing.T) {
	server := serve(t, "application/pdf", "%PDF-1.4", http.StatusOK)
	fetcher := pagemeta.NewFetcher(nil, 0)

	if _, err := fetcher.Fetch(context.Background(), server.URL); err == nil {
		t.Fatal("non-html content should be rejected")
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	server := serve(t, "text/html", "gone", http.StatusNotFound)
	fetcher := pagemeta.NewFetcher(nil, 0)

	if _, err := fetcher.Fetch(context.Background(), server.URL); err == nil {
		t.Fatal("4xx responses should be rejected")
	}
}
