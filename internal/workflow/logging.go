package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"pixguard/internal/catalog"
	"pixguard/internal/logging"
	"pixguard/internal/services"
)

func (m *Manager) laneLogger(lane *laneState) *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	name := lane.name
	if name == "" {
		name = string(lane.kind)
	}
	return m.logger.With(
		logging.String(logging.FieldComponent, fmt.Sprintf("workflow-%s-runner", name)),
		logging.String(logging.FieldLane, name),
	)
}

func withStageContext(ctx context.Context, lane *laneState, stageName string, run *catalog.Run, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if run != nil {
		ctx = services.WithRunID(ctx, run.ID)
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, stageName)
	}
	if lane != nil {
		laneLabel := strings.TrimSpace(lane.name)
		if laneLabel == "" {
			laneLabel = string(lane.kind)
		}
		ctx = services.WithLane(ctx, laneLabel)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

// stageLabel renders a status as the human progress label shown in run
// listings, e.g. "fingerprinting" becomes "Fingerprinting".
func stageLabel(status catalog.Status) string {
	trimmed := strings.TrimSpace(string(status))
	if trimmed == "" {
		return ""
	}
	runes := []rune(trimmed)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
