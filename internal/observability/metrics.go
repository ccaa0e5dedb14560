package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "collections-bridge"

var (
	metricsOnce      sync.Once
	repositoryOps    metric.Int64Counter
	reconcilerRuns   metric.Int64Counter
	webhookEvents    metric.Int64Counter
	ledgerSideEffect metric.Int64Counter
)

func initMetrics() {
	meter := otel.GetMeterProvider().Meter(meterName)
	repositoryOps, _ = meter.Int64Counter("repository_operations_total",
		metric.WithDescription("Repository operations by entity, operation and outcome"))
	reconcilerRuns, _ = meter.Int64Counter("reconciler_runs_total",
		metric.WithDescription("Reconciler executions by flow and outcome"))
	webhookEvents, _ = meter.Int64Counter("webhook_events_total",
		metric.WithDescription("Inbound webhook events by signal and outcome"))
	ledgerSideEffect, _ = meter.Int64Counter("ledger_side_effects_total",
		metric.WithDescription("Remote ledger mutations by kind"))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	metricsOnce.Do(initMetrics)
	if repositoryOps == nil {
		return
	}
	repositoryOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordReconcilerRun(ctx context.Context, flow, outcome string) {
	metricsOnce.Do(initMetrics)
	if reconcilerRuns == nil {
		return
	}
	reconcilerRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	))
}

func RecordWebhookEvent(ctx context.Context, signal, outcome string) {
	metricsOnce.Do(initMetrics)
	if webhookEvents == nil {
		return
	}
	webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("signal", signal),
		attribute.String("outcome", outcome),
	))
}

func RecordLedgerSideEffect(ctx context.Context, kind string) {
	metricsOnce.Do(initMetrics)
	if ledgerSideEffect == nil {
		return
	}
	ledgerSideEffect.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
