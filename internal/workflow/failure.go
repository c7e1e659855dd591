package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pixguard/internal/catalog"
	"pixguard/internal/logging"
	"pixguard/internal/services"
)

func (m *Manager) handleStageFailure(ctx context.Context, stageName string, run *catalog.Run, stageErr error) {
	base := m.logger
	if base == nil {
		base = logging.NewNop()
	}
	logger := logging.WithContext(ctx, base).With(logging.String(logging.FieldComponent, "workflow-manager"))

	message := m.classifyStageFailure(stageName, stageErr)
	resolved := services.FailureStatus(stageErr)
	m.setRunFailureState(run, resolved, message)

	details := services.Details(stageErr)
	attrs := []logging.Attr{
		logging.String("resolved_status", string(resolved)),
		logging.String("error_message", strings.TrimSpace(message)),
		logging.Alert("stage_failure"),
	}
	if details.Marker != nil {
		attrs = append(attrs, logging.String("error_kind", details.Marker.Error()))
	}
	if details.Operation != "" {
		attrs = append(attrs, logging.String("error_operation", details.Operation))
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(stageErr))
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "stage_failure"))
	logger.Error("stage failed", logging.Args(attrs...)...)

	if err := m.store.UpdateRun(ctx, run); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not update stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	m.setLastRun(run)
	m.notifyStageError(ctx, stageName, run, stageErr)
}

func (m *Manager) classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return m.stageFailureMessage(stageName, "failed without error detail")
	}

	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}
	if message == "" {
		message = m.stageFailureMessage(stageName, "failed")
	}
	return message
}

func (m *Manager) stageFailureMessage(stageName, defaultMsg string) string {
	if stageName != "" {
		return fmt.Sprintf("%s %s", stageName, defaultMsg)
	}
	return fmt.Sprintf("workflow %s", defaultMsg)
}

// setRunFailureState parks the run according to the failure class: input
// and validation problems wait for an operator in review, everything else
// is retryable and lands in failed.
func (m *Manager) setRunFailureState(run *catalog.Run, resolved catalog.Status, message string) {
	run.SetFailed(message)
	if resolved == catalog.StatusReview {
		run.Status = catalog.StatusReview
		run.NeedsReview = true
		run.ReviewReason = message
		run.ProgressStage = "Needs review"
	}
}
