package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"pixguard/internal/caption"
	"pixguard/internal/config"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies the volume holding path has at least minBytes free.
func CheckDiskSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%d MiB free, need %d MiB)", path, free>>20, minBytes>>20)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d MiB free)", path, free>>20)}
}

// CheckModelFile verifies a model artifact exists and is a non-empty
// regular file. It does not load the model; the embedding provider does
// that lazily on first use.
func CheckModelFile(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if info.Size() == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: empty file)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d MiB)", path, info.Size()>>20)}
}

// CheckCaption verifies that the caption API is reachable and the key is
// valid. It uses a 30-second timeout and a single attempt (no retries).
func CheckCaption(ctx context.Context, cfg config.CaptionConfig) Result {
	const name = "Caption LLM"
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := caption.NewClient(cfg, caption.WithRetryMaxAttempts(1))
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeHealthError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckCandidateSources verifies at least one candidate source can run. The
// SerpAPI key is never verified over the network here because every request
// spends query budget.
func CheckCandidateSources(cfg *config.Config) Result {
	const name = "Candidate sources"
	hasExternal := cfg.Providers.SerpAPIKey != ""
	switch {
	case hasExternal && cfg.Providers.CorpusEnabled:
		return Result{Name: name, Passed: true, Detail: "serpapi + corpus scan"}
	case hasExternal:
		return Result{Name: name, Passed: true, Detail: "serpapi"}
	case cfg.Providers.CorpusEnabled:
		return Result{Name: name, Passed: true, Detail: "corpus scan only (no serpapi_api_key)"}
	default:
		return Result{Name: name, Detail: "no sources configured (set serpapi_api_key or corpus_enabled)"}
	}
}

// CheckDelivery validates the dossier delivery addresses without touching
// the SMTP server.
func CheckDelivery(cfg config.Delivery) Result {
	const name = "Dossier delivery"
	if cfg.FromAddress == "" {
		return Result{Name: name, Detail: "from_address missing"}
	}
	if _, err := mail.ParseAddress(cfg.FromAddress); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("from_address invalid (%v)", err)}
	}
	if cfg.Recipient == "" {
		return Result{Name: name, Detail: "recipient missing"}
	}
	if _, err := mail.ParseAddress(cfg.Recipient); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("recipient invalid (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s via %s", cfg.Recipient, cfg.SMTPHost)}
}

// summarizeHealthError produces a human-readable summary for health check failures.
func summarizeHealthError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
