package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/embedding"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
	"pixguard/internal/services"
	"pixguard/internal/stageexec"
	"pixguard/internal/storage"
)

// Input describes a scan submission. A fresh scan carries the staged file;
// a rescan names an already protected asset instead and leaves StagedPath
// empty.
type Input struct {
	Owner         string
	Filename      string
	StagedPath    string
	SourceAssetID int64
}

// Handlers bundles the five stage handlers the runner drives.
type Handlers struct {
	Fingerprinter stageexec.Handler
	Fetcher       stageexec.Handler
	Scorer        stageexec.Handler
	Persister     stageexec.Handler
	Notifier      stageexec.Handler
}

// Runner drives a run through every stage in order on the calling
// goroutine. The daemon lanes use the same handlers asynchronously; this
// path exists for blocking submissions that want the outcome in hand.
type Runner struct {
	cfg      *config.Config
	store    *catalog.Store
	logger   *slog.Logger
	notifier notify.Service
	handlers Handlers
}

// NewRunner wires a runner from production collaborators. The models
// provider and object store are shared with the daemon lanes so both paths
// hit the same caches.
func NewRunner(cfg *config.Config, store *catalog.Store, logger *slog.Logger, models *embedding.Lazy, objects storage.Backend) *Runner {
	handlers := Handlers{
		Fingerprinter: NewFingerprinter(cfg, store, logger, models, objects),
		Fetcher:       NewFetcher(cfg, store, logger, objects),
		Scorer:        NewScorer(cfg, store, logger, models),
		Persister:     NewPersister(store, logger),
		Notifier:      NewNotifier(cfg, store, logger),
	}
	return NewRunnerWithHandlers(cfg, store, logger, notify.NewService(cfg, store), handlers)
}

// NewRunnerWithHandlers wires a runner with explicit stage handlers (used
// in tests).
func NewRunnerWithHandlers(cfg *config.Config, store *catalog.Store, logger *slog.Logger, notifier notify.Service, handlers Handlers) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "pipeline-runner"),
		notifier: notifier,
		handlers: handlers,
	}
}

// Run creates a run for the input and carries it to a terminal state. Scan
// failures are reported on the result, not as an error; the error return is
// reserved for machinery problems such as an unreachable catalog.
func (r *Runner) Run(ctx context.Context, input Input) (*Result, error) {
	run, err := r.createRun(ctx, input)
	if err != nil {
		return nil, err
	}
	r.announceStart(ctx, run)
	return r.Process(ctx, run)
}

// Process drives an existing run through the remaining stages. Stages the
// run already passed are skipped, and a run interrupted mid-stage re-enters
// that stage, so resuming never repeats completed work.
func (r *Runner) Process(ctx context.Context, run *catalog.Run) (*Result, error) {
	for _, step := range r.steps() {
		if !step.wants(run.Status) {
			continue
		}
		err := stageexec.Run(ctx, stageexec.Options{
			Logger:     r.logger,
			Store:      r.store,
			Notifier:   r.notifier,
			Handler:    step.handler,
			StageName:  step.name,
			Processing: step.processing,
			Done:       step.done,
			Run:        run,
		})
		if err != nil {
			if run.Status == catalog.StatusFailed || run.Status == catalog.StatusReview {
				// Persisted stage failure; the result carries it.
				break
			}
			return nil, err
		}
	}
	return BuildResult(ctx, r.store, run)
}

type runnerStep struct {
	name       string
	handler    stageexec.Handler
	start      catalog.Status
	processing catalog.Status
	done       catalog.Status
}

// wants reports whether the step applies to a run in the given status. The
// processing status is accepted too so interrupted runs re-enter their
// stage.
func (s runnerStep) wants(status catalog.Status) bool {
	return status == s.start || status == s.processing
}

func (r *Runner) steps() []runnerStep {
	return []runnerStep{
		{"fingerprinter", r.handlers.Fingerprinter, catalog.StatusPending, catalog.StatusFingerprinting, catalog.StatusFingerprinted},
		{"fetcher", r.handlers.Fetcher, catalog.StatusFingerprinted, catalog.StatusFetching, catalog.StatusFetched},
		{"scorer", r.handlers.Scorer, catalog.StatusFetched, catalog.StatusScoring, catalog.StatusScored},
		{"persister", r.handlers.Persister, catalog.StatusScored, catalog.StatusPersisting, catalog.StatusPersisted},
		{"notifier", r.handlers.Notifier, catalog.StatusPersisted, catalog.StatusNotifying, catalog.StatusCompleted},
	}
}

func (r *Runner) createRun(ctx context.Context, input Input) (*catalog.Run, error) {
	if input.SourceAssetID != 0 {
		run, err := r.store.NewRescanRun(ctx, input.Owner, input.SourceAssetID)
		if err != nil {
			return nil, services.Wrap(services.ErrPersistence, "pipeline", "create run", "Could not create the rescan run", err)
		}
		return run, nil
	}
	if strings.TrimSpace(input.StagedPath) == "" {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "create run", "Scan input needs a staged file or an asset to rescan", nil)
	}
	run, err := r.store.NewRun(ctx, input.Owner, input.Filename, input.StagedPath)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "pipeline", "create run", "Could not create the scan run", err)
	}
	return run, nil
}

func (r *Runner) announceStart(ctx context.Context, run *catalog.Run) {
	if r.notifier == nil {
		return
	}
	filename := strings.TrimSpace(run.OriginalFilename)
	if filename == "" {
		filename = fmt.Sprintf("run #%d", run.ID)
	}
	if err := r.notifier.Publish(ctx, notify.EventScanStarted, notify.Payload{
		"filename": filename,
		"owner":    run.Owner,
		"run_id":   strconv.FormatInt(run.ID, 10),
	}); err != nil {
		r.logger.Debug("scan start notification failed", logging.Error(err))
	}
}
