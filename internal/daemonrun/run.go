package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"pixguard/internal/api"
	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/daemon"
	"pixguard/internal/dossier"
	"pixguard/internal/embedding"
	"pixguard/internal/ipc"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
	"pixguard/internal/pipeline"
	"pixguard/internal/storage"
	"pixguard/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the pixguard daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("pixguard-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logConfigSnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update pixguard.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "pixguard-*.log", Exclude: []string{logPath}},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, "pixguard.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := catalog.Open(cfg)
	if err != nil {
		logger.Error("open catalog store", logging.Error(err))
		return err
	}
	defer store.Close()

	recoverRuns(signalCtx, logger, store)
	sweepStaleStaging(signalCtx, logger, cfg, store)

	notifier := notify.NewService(cfg, store)
	models := embedding.NewLazyFromConfig(cfg)
	defer models.Close()
	objects, err := storage.FromConfig(signalCtx, cfg)
	if err != nil {
		logger.Error("configure object storage", logging.Error(err))
		return err
	}

	workflowManager := workflow.NewManagerWithNotifier(cfg, store, logger, notifier)
	fingerprinter := pipeline.NewFingerprinter(cfg, store, logger, models, objects)
	workflowManager.ConfigureStages(workflow.StageSet{
		Fingerprinter: fingerprinter,
		Fetcher:       pipeline.NewFetcher(cfg, store, logger, objects),
		Scorer:        pipeline.NewScorer(cfg, store, logger, models),
		Persister:     pipeline.NewPersister(store, logger),
		Notifier:      pipeline.NewNotifierWithDependencies(store, logger, notifier),
	})

	var deliveryWG sync.WaitGroup
	if cfg.Delivery.SMTPHost != "" {
		worker, workerErr := dossier.NewWorker(cfg, store, logger, notifier)
		if workerErr != nil {
			logger.Warn("dossier delivery disabled",
				logging.Error(workerErr),
				logging.String(logging.FieldEventType, "delivery_disabled"),
				logging.String(logging.FieldErrorHint, "check the [delivery] config section"),
				logging.String(logging.FieldImpact, "confirmed matches will not be delivered automatically"),
			)
		} else {
			worker.StartLoop(signalCtx, &deliveryWG)
		}
	} else {
		logger.Info("dossier delivery disabled; [delivery] smtp_host is not set",
			logging.String(logging.FieldEventType, "delivery_disabled"))
	}

	deps := api.ScanDependencies{
		Models:        models,
		Objects:       objects,
		Fingerprinter: fingerprinter,
		Runner:        pipeline.NewRunner(cfg, store, logger, models, objects),
	}
	d, err := daemon.New(cfg, store, logger, workflowManager, deps)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := filepath.Join(cfg.Paths.LogDir, "pixguard.sock")
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and catalog database access"),
			logging.String(logging.FieldImpact, "daemon may not process scan runs"),
		)
	}

	<-signalCtx.Done()
	logger.Info("pixguard daemon shutting down")
	deliveryWG.Wait()
	return nil
}

// recoverRuns returns runs stranded in a processing status by a previous
// process to their lane's ready status before any lane starts.
func recoverRuns(ctx context.Context, logger *slog.Logger, store *catalog.Store) {
	reset, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		logger.Warn("reset stuck runs failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "run_recovery_failed"),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
		)
		return
	}
	if reset > 0 {
		logger.Info("recovered interrupted runs",
			logging.String(logging.FieldEventType, "run_recovery"),
			logging.Int64("reset_count", reset))
	}
}

// sweepStaleStaging deletes staged upload files no run references. Orphans
// appear when a previous process crashed between staging a file and
// queueing its run.
func sweepStaleStaging(ctx context.Context, logger *slog.Logger, cfg *config.Config, store *catalog.Store) {
	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("read staging directory failed", logging.Error(err))
		}
		return
	}
	if len(entries) == 0 {
		return
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		logger.Warn("list runs for staging sweep failed", logging.Error(err))
		return
	}
	referenced := make(map[string]struct{}, len(runs))
	for _, run := range runs {
		if run.StagedPath != "" {
			referenced[run.StagedPath] = struct{}{}
		}
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(cfg.Paths.StagingDir, entry.Name())
		if _, ok := referenced[path]; ok {
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warn("remove orphaned staging file failed",
				logging.String("path", path),
				logging.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("removed orphaned staging files",
			logging.String(logging.FieldEventType, "staging_sweep"),
			logging.Int("removed_count", removed))
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "pixguard.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.Bool("image_model_present", fileExists(cfg.Fingerprint.ModelPath)),
		logging.Bool("text_model_present", fileExists(cfg.Fingerprint.TextModelPath)),
		logging.Bool("tokenizer_present", fileExists(cfg.Fingerprint.TokenizerPath)),
		logging.String("text_backend", strings.TrimSpace(cfg.Fingerprint.TextBackend)),
		logging.Bool("caption_enabled", cfg.Fingerprint.CaptionEnabled),
		logging.Bool("serpapi_key_present", strings.TrimSpace(cfg.Providers.SerpAPIKey) != ""),
		logging.Bool("corpus_enabled", cfg.Providers.CorpusEnabled),
		logging.String("storage_backend", strings.TrimSpace(cfg.Storage.Backend)),
		logging.Bool("smtp_configured", strings.TrimSpace(cfg.Delivery.SMTPHost) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("feed_enabled", cfg.Notifications.FeedEnabled),
	)
}

func fileExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
