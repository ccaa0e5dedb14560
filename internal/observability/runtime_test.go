package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hector-minka/collections-bridge/internal/config"
)

func TestRuntimeShutdownNilSafe(t *testing.T) {
	var r *Runtime
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil runtime shutdown: %v", err)
	}
	if err := (&Runtime{}).Shutdown(context.Background()); err != nil {
		t.Fatalf("empty runtime shutdown: %v", err)
	}
}

func TestInitRuntimeTracingDisabled(t *testing.T) {
	cfg := &config.Config{Env: "test", OTELTracingEnabled: false}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := InitRuntime(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("init runtime: %v", err)
	}
	if r.TracerProvider == nil || r.MeterProvider == nil {
		t.Fatal("expected both providers")
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestMetricRecordersAreSafeWithoutReader(t *testing.T) {
	ctx := context.Background()
	RecordRepositoryOperation(ctx, "collection", "create", "success")
	RecordReconcilerRun(ctx, "anchor_created", "success")
	RecordWebhookEvent(ctx, "anchor-created", "accepted")
	RecordLedgerSideEffect(ctx, "intent_create")
}
