package services_test

import (
	"context"
	"testing"

	"rebind/internal/services"
)

func TestJobIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("unexpected job id on empty context")
	}

	ctx = services.WithJobID(ctx, int64(42))
	id, ok := services.JobIDFromContext(ctx)
	if !ok || id != 42 {
		t.Fatalf("job id = %d (%t), want 42", id, ok)
	}
}

func TestStageAndRequestIDRoundTrip(t *testing.T) {
	ctx := services.WithStage(context.Background(), "enhancing")
	stage, ok := services.StageFromContext(ctx)
	if !ok || stage != "enhancing" {
		t.Fatalf("stage = %q (%t)", stage, ok)
	}

	ctx = services.WithRequestID(ctx, "req-1")
	id, ok := services.RequestIDFromContext(ctx)
	if !ok || id != "req-1" {
		t.Fatalf("request id = %q (%t)", id, ok)
	}

	// Empty values never annotate.
	if _, ok := services.StageFromContext(services.WithStage(context.Background(), "")); ok {
		t.Fatal("empty stage should not annotate the context")
	}
}
