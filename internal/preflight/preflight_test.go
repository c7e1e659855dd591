package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"pixguard/internal/config"
	"pixguard/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	result := CheckDiskSpace("test", t.TempDir(), 1)
	if !result.Passed {
		t.Fatalf("expected pass for 1-byte requirement, got: %s", result.Detail)
	}
	result = CheckDiskSpace("test", filepath.Join(t.TempDir(), "nope"), 1)
	if result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckModelFile(t *testing.T) {
	dir := t.TempDir()

	missing := CheckModelFile("model", filepath.Join(dir, "missing.onnx"))
	if missing.Passed {
		t.Fatal("expected failure for missing model")
	}

	empty := filepath.Join(dir, "empty.onnx")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckModelFile("model", empty); result.Passed {
		t.Fatal("expected failure for empty model file")
	}

	ok := filepath.Join(dir, "model.onnx")
	if err := os.WriteFile(ok, []byte("weights"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckModelFile("model", ok); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckCaption_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	result := CheckCaption(context.Background(), config.CaptionConfig{APIKey: "good-key", BaseURL: srv.URL, Model: "test"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckCaption_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckCaption(context.Background(), config.CaptionConfig{APIKey: "bad-key", BaseURL: srv.URL, Model: "test"})
	if result.Passed {
		t.Fatal("expected failure for rejected key")
	}
}

func TestCheckCaption_MissingKey(t *testing.T) {
	result := CheckCaption(context.Background(), config.CaptionConfig{})
	if result.Passed {
		t.Fatal("expected failure for missing key")
	}
}

func TestCheckCandidateSources(t *testing.T) {
	cfg := &config.Config{}
	if result := CheckCandidateSources(cfg); result.Passed {
		t.Fatal("expected failure with no sources")
	}

	cfg.Providers.SerpAPIKey = "key"
	if result := CheckCandidateSources(cfg); !result.Passed {
		t.Fatalf("expected pass with serpapi key, got: %s", result.Detail)
	}

	cfg.Providers.SerpAPIKey = ""
	cfg.Providers.CorpusEnabled = true
	if result := CheckCandidateSources(cfg); !result.Passed {
		t.Fatalf("expected pass with corpus scan, got: %s", result.Detail)
	}
}

func TestCheckDelivery(t *testing.T) {
	cfg := config.Delivery{SMTPHost: "smtp.example.com"}
	if result := CheckDelivery(cfg); result.Passed {
		t.Fatal("expected failure without addresses")
	}

	cfg.FromAddress = "not-an-address"
	cfg.Recipient = "abuse@example.com"
	if result := CheckDelivery(cfg); result.Passed {
		t.Fatal("expected failure for malformed from_address")
	}

	cfg.FromAddress = "pixguard@example.com"
	if result := CheckDelivery(cfg); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestRunAllCoversConfiguredFeatures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Providers.SerpAPIKey = "key"
	cfg.Delivery.SMTPHost = "smtp.example.com"
	cfg.Delivery.FromAddress = "pixguard@example.com"
	cfg.Delivery.Recipient = "abuse@example.com"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) == 0 {
		t.Fatal("expected checks to run")
	}
	byName := map[string]Result{}
	for _, result := range results {
		byName[result.Name] = result
	}
	for _, name := range []string{"Staging directory", "Data directory", "Staging disk space", "Candidate sources", "Dossier delivery"} {
		result, ok := byName[name]
		if !ok {
			t.Errorf("check %q missing from results", name)
			continue
		}
		if !result.Passed {
			t.Errorf("check %q failed: %s", name, result.Detail)
		}
	}
	if _, ok := byName["Caption LLM"]; ok {
		t.Error("caption check ran with captioning disabled")
	}
}
