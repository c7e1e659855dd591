// Package stageexec executes one pipeline stage synchronously with the
// same persistence and failure semantics the daemon lanes apply. The
// blocking scan path drives runs through it without a workflow manager.
package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"pixguard/internal/catalog"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
	"pixguard/internal/services"
)

// Handler is the stage contract used by the execution helper.
type Handler interface {
	Prepare(context.Context, *catalog.Run) error
	Execute(context.Context, *catalog.Run) error
}

// Options controls stage execution and run persistence behavior.
type Options struct {
	Logger     *slog.Logger
	Store      *catalog.Store
	Notifier   notify.Service
	Handler    Handler
	StageName  string
	Processing catalog.Status
	Done       catalog.Status
	Run        *catalog.Run
}

// Run executes a stage and applies the run transition semantics used by
// one-shot scans. Failures are persisted onto the run (routed to failed or
// review per their error class) before the stage error is returned.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return fmt.Errorf("stage handler unavailable: %s", opts.StageName)
	}
	if opts.Store == nil {
		return fmt.Errorf("catalog store is required")
	}
	if opts.Run == nil {
		return fmt.Errorf("run is required")
	}

	stageCtx := services.WithStage(services.WithRunID(ctx, opts.Run.ID), opts.StageName)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(opts.Processing)),
		logging.String("filename", strings.TrimSpace(opts.Run.OriginalFilename)),
		logging.String(logging.FieldOwner, opts.Run.Owner),
	)

	setRunProcessingState(opts.Run, opts.Processing)
	if err := opts.Store.UpdateRun(stageCtx, opts.Run); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}

	if err := opts.Handler.Prepare(stageCtx, opts.Run); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, err)
	}
	if err := opts.Store.UpdateRun(stageCtx, opts.Run); err != nil {
		return fmt.Errorf("persist stage preparation: %w", err)
	}

	if err := opts.Handler.Execute(stageCtx, opts.Run); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, err)
	}

	if opts.Run.Status == opts.Processing || opts.Run.Status == "" {
		opts.Run.Status = opts.Done
	}
	opts.Run.LastHeartbeat = nil
	if opts.Run.Status == catalog.StatusCompleted {
		if !opts.Run.NeedsReview {
			opts.Run.ProgressStage = deriveStageLabel(catalog.StatusCompleted)
		}
		if opts.Run.ProgressPercent < 100 {
			opts.Run.ProgressPercent = 100
		}
		if strings.TrimSpace(opts.Run.ProgressMessage) == "" {
			opts.Run.ProgressMessage = deriveStageLabel(catalog.StatusCompleted)
		}
	}
	if err := opts.Store.UpdateRun(stageCtx, opts.Run); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(opts.Run.Status)),
		logging.String("progress_stage", strings.TrimSpace(opts.Run.ProgressStage)),
		logging.String("progress_message", strings.TrimSpace(opts.Run.ProgressMessage)),
	)

	return nil
}

func handleFailure(ctx context.Context, logger *slog.Logger, opts Options, stageErr error) error {
	message := "stage failed"
	if stageErr != nil {
		details := services.Details(stageErr)
		message = strings.TrimSpace(details.Message)
		if message == "" {
			message = strings.TrimSpace(stageErr.Error())
		}
	}
	resolved := services.FailureStatus(stageErr)

	run := opts.Run
	run.SetFailed(message)
	if resolved == catalog.StatusReview {
		run.Status = catalog.StatusReview
		run.NeedsReview = true
		run.ReviewReason = message
		run.ProgressStage = "Needs review"
	}

	logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("resolved_status", string(resolved)),
		logging.String("error_message", strings.TrimSpace(message)),
		logging.Error(stageErr),
	)
	if err := opts.Store.UpdateRun(ctx, run); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
	}

	if opts.Notifier != nil && stageErr != nil {
		contextLabel := fmt.Sprintf("%s (run #%d)", opts.StageName, run.ID)
		if err := opts.Notifier.Publish(ctx, notify.EventRunFailed, notify.Payload{
			"error":   stageErr.Error(),
			"context": contextLabel,
			"run_id":  strconv.FormatInt(run.ID, 10),
		}); err != nil {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}

	return stageErr
}

func setRunProcessingState(run *catalog.Run, processing catalog.Status) {
	now := time.Now().UTC()
	run.Status = processing
	if run.ProgressStage == "" {
		run.ProgressStage = deriveStageLabel(processing)
	}
	if run.ProgressMessage == "" {
		run.ProgressMessage = fmt.Sprintf("%s started", deriveStageLabel(processing))
	}
	run.ProgressPercent = 0
	run.ErrorMessage = ""
	run.LastHeartbeat = &now
}

func deriveStageLabel(status catalog.Status) string {
	trimmed := strings.TrimSpace(string(status))
	if trimmed == "" {
		return ""
	}
	runes := []rune(trimmed)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
