package services

import "context"

type contextKey string

const (
	runIDKey     contextKey = "pixguard.run_id"
	stageKey     contextKey = "pixguard.stage"
	laneKey      contextKey = "pixguard.lane"
	requestIDKey contextKey = "pixguard.request_id"
)

// WithRunID stores a run identifier in the context.
func WithRunID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext retrieves a run identifier from the context.
func RunIDFromContext(ctx context.Context) (int64, bool) {
	switch v := ctx.Value(runIDKey).(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// WithStage stores the active stage name in the context.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext retrieves the active stage name from the context.
func StageFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(stageKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithLane stores the workflow lane name in the context.
func WithLane(ctx context.Context, lane string) context.Context {
	if lane == "" {
		return ctx
	}
	return context.WithValue(ctx, laneKey, lane)
}

// LaneFromContext retrieves the workflow lane name from the context.
func LaneFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(laneKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRequestID stores an API or IPC request identifier in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext retrieves the request identifier from the context.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
