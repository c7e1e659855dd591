package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pixguard/internal/catalog"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
)

func (m *Manager) notifyStageError(ctx context.Context, stageName string, run *catalog.Run, stageErr error) {
	if m.notifier == nil || stageErr == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger.With(logging.String(logging.FieldComponent, "workflow-manager")))
	contextLabel := fmt.Sprintf("%s (run #%d)", stageName, run.ID)
	if err := m.notifier.Publish(ctx, notify.EventRunFailed, notify.Payload{
		"error":   stageErr.Error(),
		"context": contextLabel,
		"run_id":  strconv.FormatInt(run.ID, 10),
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send error notification")
		} else {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}
}

// onRunStarted announces a fresh scan. Only the analysis lane carries the
// notification flag, so each run is announced once, when fingerprinting
// picks it up.
func (m *Manager) onRunStarted(ctx context.Context, run *catalog.Run) {
	if m.notifier == nil || run == nil {
		return
	}
	filename := strings.TrimSpace(run.OriginalFilename)
	if filename == "" {
		filename = fmt.Sprintf("run #%d", run.ID)
	}
	if err := m.notifier.Publish(ctx, notify.EventScanStarted, notify.Payload{
		"filename": filename,
		"owner":    run.Owner,
		"run_id":   strconv.FormatInt(run.ID, 10),
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send scan start notification")
		} else {
			m.logger.Debug("scan start notification failed", logging.Error(err))
		}
	}
}
