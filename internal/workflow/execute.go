package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pixguard/internal/catalog"
	"pixguard/internal/logging"
	"pixguard/internal/stage"
)

func (m *Manager) processRun(ctx context.Context, lane *laneState, laneLogger *slog.Logger, run *catalog.Run) error {
	stg, ok := lane.stageForStatus(run.Status)
	if !ok {
		if laneLogger == nil {
			laneLogger = m.logger
		}
		if laneLogger == nil {
			laneLogger = logging.NewNop()
		}
		laneLogger.Warn("no stage configured for status", logging.String("status", string(run.Status)))
		m.waitForRunOrShutdown(ctx)
		return nil
	}

	requestID := uuid.NewString()
	stageCtx := withStageContext(ctx, lane, stg.name, run, requestID)
	stageLogger := logging.WithContext(stageCtx, laneLogger)

	if err := m.transitionToProcessing(stageCtx, lane, stg.processingStatus, run); err != nil {
		stageLogger.Error("failed to transition run to processing", logging.Error(err))
		m.setLastError(err)
		return err
	}

	return m.executeStage(stageCtx, stageLogger, stg, run)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, run *catalog.Run) error {
	stageStart := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.processingStatus)),
		logging.String("filename", strings.TrimSpace(run.OriginalFilename)),
		logging.String(logging.FieldOwner, run.Owner),
	)

	handler := stg.handler
	if handler == nil {
		stageLogger.Warn("missing stage handler", logging.String(logging.FieldStage, stg.name))
		run.Status = catalog.StatusFailed
		run.ErrorMessage = fmt.Sprintf("stage %s missing handler", stg.name)
		if err := m.store.UpdateRun(ctx, run); err != nil {
			stageLogger.Error("failed to persist missing handler failure", logging.Error(err))
		}
		m.setLastError(errors.New("stage handler unavailable"))
		return errors.New("stage handler unavailable")
	}

	if err := handler.Prepare(ctx, run); err != nil {
		m.handleStageFailure(ctx, stg.name, run, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.UpdateRun(ctx, run); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, handler, run)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(ctx, stg.name, run, execErr)
		m.setLastError(execErr)
		return execErr
	}

	if run.Status == stg.processingStatus || run.Status == "" {
		run.Status = stg.doneStatus
	}
	run.LastHeartbeat = nil
	if run.Status == catalog.StatusCompleted {
		if !run.NeedsReview {
			run.ProgressStage = stageLabel(catalog.StatusCompleted)
		}
		if run.ProgressPercent < 100 {
			run.ProgressPercent = 100
		}
		if strings.TrimSpace(run.ProgressMessage) == "" {
			run.ProgressMessage = stageLabel(catalog.StatusCompleted)
		}
	}
	if err := m.store.UpdateRun(ctx, run); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(run.Status)),
		logging.String("progress_stage", strings.TrimSpace(run.ProgressStage)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastRun(run)
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, run *catalog.Run) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, run.ID)

	execErr := handler.Execute(ctx, run)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) transitionToProcessing(ctx context.Context, lane *laneState, processing catalog.Status, run *catalog.Run) error {
	if processing == "" {
		return errors.New("processing status must not be empty")
	}

	m.setRunProcessingState(run, processing)
	if err := m.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}
	m.setLastRun(run)
	if lane == nil || lane.notificationsEnabled {
		m.onRunStarted(ctx, run)
	}
	return nil
}

func (m *Manager) setRunProcessingState(run *catalog.Run, processing catalog.Status) {
	now := time.Now().UTC()
	run.Status = processing
	if run.ProgressStage == "" {
		run.ProgressStage = stageLabel(processing)
	}
	if run.ProgressMessage == "" {
		run.ProgressMessage = fmt.Sprintf("%s started", stageLabel(processing))
	}
	run.ProgressPercent = 0
	run.ErrorMessage = ""
	run.LastHeartbeat = &now
}
