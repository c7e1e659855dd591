package pipeline

import (
	"context"

	"log/slog"

	"pixguard/internal/catalog"
	"pixguard/internal/logging"
)

// updateProgress persists an intermediate progress update without touching
// the rest of the run row. Failures are logged and swallowed; progress is
// cosmetic and never worth failing a stage over.
func updateProgress(ctx context.Context, store *catalog.Store, logger *slog.Logger, run *catalog.Run, message string, percent float64) {
	snapshot := *run
	snapshot.ProgressMessage = message
	snapshot.ProgressPercent = percent
	if err := store.UpdateRunProgress(ctx, &snapshot); err != nil {
		logging.WithContext(ctx, logger).Warn("failed to persist run progress", logging.Error(err))
		return
	}
	*run = snapshot
}
