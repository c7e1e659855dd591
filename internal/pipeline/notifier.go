package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"log/slog"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
	"pixguard/internal/stage"
)

// Notifier announces the scan outcome. Delivery is best effort: a failed
// notification is logged and the run still completes.
type Notifier struct {
	store    *catalog.Store
	logger   *slog.Logger
	notifier notify.Service
}

// NewNotifier constructs the notifying stage handler.
func NewNotifier(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Notifier {
	return NewNotifierWithDependencies(store, logger, notify.NewService(cfg, store))
}

// NewNotifierWithDependencies allows injecting collaborators (used in tests).
func NewNotifierWithDependencies(store *catalog.Store, logger *slog.Logger, notifier notify.Service) *Notifier {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "notifier"))
	}
	return &Notifier{store: store, logger: stageLogger, notifier: notifier}
}

func (n *Notifier) Prepare(ctx context.Context, run *catalog.Run) error {
	if run.ProgressStage == "" {
		run.ProgressStage = "Notifying"
	}
	run.ProgressMessage = "Announcing scan outcome"
	run.ProgressPercent = 0
	run.ErrorMessage = ""
	logging.WithContext(ctx, n.logger).Info("starting outcome notification", logging.Int64(logging.FieldRunID, run.ID))
	return nil
}

func (n *Notifier) Execute(ctx context.Context, run *catalog.Run) error {
	logger := logging.WithContext(ctx, n.logger)

	filename := run.OriginalFilename
	if filename == "" && run.SourceAssetID != nil {
		if asset, err := n.store.GetSourceAsset(ctx, *run.SourceAssetID); err == nil && asset != nil {
			filename = asset.OriginalFilename
		}
	}
	if filename == "" {
		filename = fmt.Sprintf("run #%d", run.ID)
	}

	payload := notify.Payload{
		"filename": filename,
		"owner":    run.Owner,
		"run_id":   strconv.FormatInt(run.ID, 10),
	}

	event := notify.EventNoMatches
	if run.MatchCount > 0 {
		event = notify.EventMatchesFound
		payload["count"] = strconv.FormatInt(run.MatchCount, 10)
		if top, ok := n.topScore(ctx, run); ok {
			payload["top_score"] = fmt.Sprintf("%.2f", top)
		}
	}
	if n.notifier != nil {
		if err := n.notifier.Publish(ctx, event, payload); err != nil {
			logger.Warn("outcome notification failed", logging.Error(err))
		}
	}

	run.SetProgress("Notifying", "Scan complete", 100)
	logger.Info(
		"scan outcome announced",
		logging.String(logging.FieldEventType, string(event)),
		logging.Int64("matches", run.MatchCount),
	)
	return nil
}

// topScore finds the strongest match recorded for the scanned asset across
// all runs, so a rescan reports the same headline number as the first scan.
func (n *Notifier) topScore(ctx context.Context, run *catalog.Run) (float64, bool) {
	if run.SourceAssetID == nil {
		return 0, false
	}
	matches, err := n.store.MatchesForAsset(ctx, *run.SourceAssetID)
	if err != nil || len(matches) == 0 {
		return 0, false
	}
	top := matches[0].Score
	for _, match := range matches[1:] {
		if match.Score > top {
			top = match.Score
		}
	}
	return top, true
}

// HealthCheck reports notification readiness.
func (n *Notifier) HealthCheck(ctx context.Context) stage.Health {
	const name = "notifier"
	if n.notifier == nil {
		return stage.Unhealthy(name, "notification service unavailable")
	}
	return stage.Healthy(name)
}
