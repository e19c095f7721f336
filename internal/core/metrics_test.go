package core_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"ncube/internal/core"
)

func TestExpvarMetricsRecorderAggregatesByOperationAndOutcome(t *testing.T) {
	rec := core.NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "resolve_cube", true, 10*time.Millisecond)
	rec.Observe(ctx, "resolve_cube", true, 20*time.Millisecond)
	rec.Observe(ctx, "resolve_cube", false, 5*time.Millisecond)

	snap := rec.Snapshot()
	if snap.Results["resolve_cube"]["success"] != 2 {
		t.Fatalf("expected 2 successes, got %d", snap.Results["resolve_cube"]["success"])
	}
	if snap.Results["resolve_cube"]["error"] != 1 {
		t.Fatalf("expected 1 error, got %d", snap.Results["resolve_cube"]["error"])
	}
	if snap.DurationsMS["resolve_cube"] < 34 || snap.DurationsMS["resolve_cube"] > 36 {
		t.Fatalf("expected aggregated duration near 35ms, got %f", snap.DurationsMS["resolve_cube"])
	}
}

func TestExpvarMetricsRecorderIgnoresEmptyOperation(t *testing.T) {
	rec := core.NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "", true, time.Millisecond)
	snap := rec.Snapshot()
	if len(snap.Results) != 0 {
		t.Fatalf("expected an empty operation name to be dropped, got %v", snap.Results)
	}
}

func TestJSONTraceTracerRecordsSuccessAndErrorSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := core.NewJSONTracer(&buf)

	_, span := tracer.Start(context.Background(), "update_cube")
	span.End(nil)

	_, span2 := tracer.Start(context.Background(), "delete_cubes")
	span2.End(context.DeadlineExceeded)

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 recorded spans, got %d", len(entries))
	}
	if entries[0].Status != "success" || entries[0].Operation != "update_cube" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error == "" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	if buf.Len() == 0 {
		t.Fatalf("expected spans to also be written to the configured writer")
	}
}
