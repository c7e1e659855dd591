package services_test

import (
	"context"
	"testing"

	"pixguard/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, 42)
	ctx = services.WithStage(ctx, "scoring")
	ctx = services.WithLane(ctx, "matching")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "scoring" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if lane, ok := services.LaneFromContext(ctx); !ok || lane != "matching" {
		t.Fatalf("unexpected lane: %v %v", lane, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestRunIDFromContextAcceptsInt(t *testing.T) {
	ctx := context.WithValue(context.Background(), valueKeyForTest(), 7)
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("foreign key should not resolve a run id")
	}

	ctx = services.WithRunID(context.Background(), 7)
	if id, ok := services.RunIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}

type testKey struct{}

func valueKeyForTest() any { return testKey{} }
