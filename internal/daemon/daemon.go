package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"pixguard/internal/api"
	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
	"pixguard/internal/pipeline"
	"pixguard/internal/preflight"
	"pixguard/internal/services"
	"pixguard/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *catalog.Store
	workflow *workflow.Manager
	deps     api.ScanDependencies
	logPath  string

	lockPath string
	lock     *flock.Flock

	api *apiServer

	mu     sync.Mutex
	checks []preflight.Result

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	CatalogPath  string
	LockFilePath string
	Checks       []preflight.Result
}

// New constructs a daemon with initialized dependencies. The scan
// dependencies are shared with every submission the daemon accepts so the
// inference runtime loads once per process.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger, wf *workflow.Manager, deps api.ScanDependencies) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "pixguardd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		deps:     deps,
		logPath:  filepath.Join(cfg.Paths.LogDir, "pixguard.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, launches the workflow manager, and brings
// up the HTTP API when one is configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another pixguard daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	checks := preflight.RunAll(d.ctx, d.cfg)
	for _, check := range checks {
		if !check.Passed {
			d.logger.Warn("preflight check failed",
				logging.String("check", check.Name),
				logging.String("detail", check.Detail),
			)
		}
	}
	d.mu.Lock()
	d.checks = checks
	d.mu.Unlock()

	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.workflow.Stop()
		d.abortStart()
		return fmt.Errorf("configure api server: %w", err)
	}
	if srv != nil {
		if err := srv.start(d.ctx); err != nil {
			d.workflow.Stop()
			d.abortStart()
			return fmt.Errorf("start api server: %w", err)
		}
	}
	d.api = srv

	d.running.Store(true)
	d.logger.Info("pixguard daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.api = nil
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("pixguard daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// ListRuns returns catalog runs filtered by optional statuses.
func (d *Daemon) ListRuns(ctx context.Context, statuses []catalog.Status) ([]*catalog.Run, error) {
	if d.store == nil {
		return nil, errors.New("catalog store unavailable")
	}
	if len(statuses) == 0 {
		return d.store.ListRuns(ctx)
	}
	return d.store.ListRuns(ctx, statuses...)
}

// GetRun returns one run, or nil when it does not exist.
func (d *Daemon) GetRun(ctx context.Context, id int64) (*catalog.Run, error) {
	if d.store == nil {
		return nil, errors.New("catalog store unavailable")
	}
	return d.store.GetRun(ctx, id)
}

// ClearRuns removes all runs.
func (d *Daemon) ClearRuns(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("catalog store unavailable")
	}
	return d.store.ClearRuns(ctx)
}

// ClearCompleted removes only completed runs.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("catalog store unavailable")
	}
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed runs.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("catalog store unavailable")
	}
	return d.store.ClearFailed(ctx)
}

// ResetStuck transitions in-flight runs back to pending for retry.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("catalog store unavailable")
	}
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed resets failed runs (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("catalog store unavailable")
	}
	return d.store.RetryFailed(ctx, ids...)
}

// RunHealth returns aggregate run diagnostics.
func (d *Daemon) RunHealth(ctx context.Context) (catalog.HealthSummary, error) {
	if d.store == nil {
		return catalog.HealthSummary{}, errors.New("catalog store unavailable")
	}
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (catalog.DatabaseHealth, error) {
	if d.store == nil {
		return catalog.DatabaseHealth{}, errors.New("catalog store unavailable")
	}
	return d.store.CheckHealth(ctx), nil
}

// TestNotification pushes a connectivity-test event through the configured
// notification sinks.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if !d.cfg.Notifications.FeedEnabled && strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "no notification sinks configured", nil
	}
	notifier := notify.NewService(d.cfg, d.store)
	if err := notifier.Publish(ctx, notify.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// ProtectFile registers a local image as a protected source asset without
// scanning it.
func (d *Daemon) ProtectFile(ctx context.Context, path, owner string) (*catalog.SourceAsset, bool, error) {
	result, err := api.ProtectImage(ctx, api.ProtectImageRequest{
		Config: d.cfg,
		Store:  d.store,
		Logger: d.logger,
		Deps:   d.deps,
		Path:   path,
		Owner:  owner,
	})
	if err != nil {
		return nil, false, err
	}
	return result.Asset, result.Created, nil
}

// ScanFile stages a local image and queues a scan run for the workflow.
func (d *Daemon) ScanFile(ctx context.Context, path, owner string) (*api.Run, error) {
	result, err := api.ScanImage(ctx, api.ScanImageRequest{
		Config: d.cfg,
		Store:  d.store,
		Logger: d.logger,
		Deps:   d.deps,
		Path:   path,
		Owner:  owner,
	})
	if err != nil {
		return nil, err
	}
	return result.Queued, nil
}

// RescanAsset queues a fresh scan run for an already-protected asset.
func (d *Daemon) RescanAsset(ctx context.Context, assetID int64) (*api.Run, error) {
	result, err := api.RescanAsset(ctx, api.RescanAssetRequest{
		Config:  d.cfg,
		Store:   d.store,
		Logger:  d.logger,
		Deps:    d.deps,
		AssetID: assetID,
	})
	if err != nil {
		return nil, err
	}
	return result.Queued, nil
}

// RunResult assembles the scan result document for a finished (or queued)
// run, in the same shape the HTTP wait mode returns.
func (d *Daemon) RunResult(ctx context.Context, runID int64) (api.ScanResult, error) {
	if d.store == nil {
		return api.ScanResult{}, errors.New("catalog store unavailable")
	}
	run, err := d.store.GetRun(ctx, runID)
	if err != nil {
		return api.ScanResult{}, err
	}
	if run == nil {
		return api.ScanResult{}, services.Wrap(services.ErrNotFound, "daemon", "run-result", fmt.Sprintf("Run %d does not exist", runID), nil)
	}
	result, err := pipeline.BuildResult(ctx, d.store, run)
	if err != nil {
		return api.ScanResult{}, err
	}
	return api.FromResult(result), nil
}

// ListAssets returns protected source assets, optionally for one owner.
func (d *Daemon) ListAssets(ctx context.Context, owner string) ([]*catalog.SourceAsset, error) {
	if d.store == nil {
		return nil, errors.New("catalog store unavailable")
	}
	return d.store.ListSourceAssets(ctx, owner)
}

// ListMatches returns matches filtered by optional lifecycle statuses.
func (d *Daemon) ListMatches(ctx context.Context, statuses []catalog.MatchStatus) ([]*catalog.Match, error) {
	if d.store == nil {
		return nil, errors.New("catalog store unavailable")
	}
	if len(statuses) == 0 {
		return d.store.ListMatches(ctx)
	}
	return d.store.ListMatches(ctx, statuses...)
}

// GetMatch returns one match, or nil when it does not exist.
func (d *Daemon) GetMatch(ctx context.Context, id int64) (*catalog.Match, error) {
	if d.store == nil {
		return nil, errors.New("catalog store unavailable")
	}
	return d.store.GetMatch(ctx, id)
}

// MatchesForRun returns the matches a run persisted, best score first.
func (d *Daemon) MatchesForRun(ctx context.Context, runID int64) ([]*catalog.Match, error) {
	if d.store == nil {
		return nil, errors.New("catalog store unavailable")
	}
	return d.store.MatchesForRun(ctx, runID)
}

// ReviewMatch applies a confirm or decline decision to a match.
func (d *Daemon) ReviewMatch(ctx context.Context, matchID int64, action, reviewedBy string) (api.ReviewResult, error) {
	return api.ReviewMatch(ctx, api.ReviewMatchRequest{
		Config:     d.cfg,
		Store:      d.store,
		Logger:     d.logger,
		MatchID:    matchID,
		Action:     action,
		ReviewedBy: reviewedBy,
	})
}

// ListDossiers returns dossiers filtered by optional delivery statuses.
func (d *Daemon) ListDossiers(ctx context.Context, statuses []catalog.DeliveryStatus) ([]*catalog.Dossier, error) {
	if d.store == nil {
		return nil, errors.New("catalog store unavailable")
	}
	if len(statuses) == 0 {
		return d.store.ListDossiers(ctx)
	}
	return d.store.ListDossiers(ctx, statuses...)
}

// GetDossier returns one dossier with its delivery history.
func (d *Daemon) GetDossier(ctx context.Context, id int64) (*catalog.Dossier, []*catalog.DeliveryAttempt, error) {
	if d.store == nil {
		return nil, nil, errors.New("catalog store unavailable")
	}
	dossier, err := d.store.GetDossier(ctx, id)
	if err != nil || dossier == nil {
		return dossier, nil, err
	}
	attempts, err := d.store.DeliveryAttemptsForDossier(ctx, id)
	if err != nil {
		return dossier, nil, err
	}
	return dossier, attempts, nil
}

// DeliverDossier forces a delivery attempt for one dossier. Claiming
// serializes with the background delivery worker, so a manual delivery never
// races a scheduled one.
func (d *Daemon) DeliverDossier(ctx context.Context, dossierID int64) (api.Dossier, error) {
	return api.DeliverDossier(ctx, api.DeliverDossierRequest{
		Config:    d.cfg,
		Store:     d.store,
		Logger:    d.logger,
		DossierID: dossierID,
	})
}

// ListNotifications returns feed entries, optionally scoped to one owner or
// to unread entries only.
func (d *Daemon) ListNotifications(ctx context.Context, owner string, unreadOnly bool, limit int) ([]*catalog.Notification, error) {
	if d.store == nil {
		return nil, errors.New("catalog store unavailable")
	}
	return d.store.ListNotifications(ctx, owner, unreadOnly, limit)
}

// MarkNotificationsRead stamps feed entries read, or every unread entry when
// no ids are given.
func (d *Daemon) MarkNotificationsRead(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("catalog store unavailable")
	}
	return d.store.MarkNotificationsRead(ctx, ids...)
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	summary := d.workflow.Status(ctx)
	d.mu.Lock()
	checks := make([]preflight.Result, len(d.checks))
	copy(checks, d.checks)
	d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     summary,
		CatalogPath:  filepath.Join(d.cfg.Paths.DataDir, "pixguard.db"),
		LockFilePath: d.lockPath,
		Checks:       checks,
	}
}
