package main

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// reconcileMetrics agrupa os contadores da reconciliação
type reconcileMetrics struct {
	passes         metric.Int64Counter
	outcomes       metric.Int64Counter
	alerts         metric.Int64Counter
	passDurationMs metric.Float64Histogram
}

func newReconcileMetrics(meter metric.Meter) *reconcileMetrics {
	m := &reconcileMetrics{}
	var err error

	if m.passes, err = meter.Int64Counter("reconciliation.passes",
		metric.WithDescription("Reconciliation passes executed")); err != nil {
		log.Printf("⚠️  Failed to create reconciliation.passes counter: %v", err)
	}
	if m.outcomes, err = meter.Int64Counter("reconciliation.orders",
		metric.WithDescription("Orders handled by reconciliation, by outcome")); err != nil {
		log.Printf("⚠️  Failed to create reconciliation.orders counter: %v", err)
	}
	if m.alerts, err = meter.Int64Counter("reconciliation.settlement_alerts",
		metric.WithDescription("Settlement actions that failed after a decision")); err != nil {
		log.Printf("⚠️  Failed to create reconciliation.settlement_alerts counter: %v", err)
	}
	if m.passDurationMs, err = meter.Float64Histogram("reconciliation.pass.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration of a reconciliation pass")); err != nil {
		log.Printf("⚠️  Failed to create reconciliation.pass.duration histogram: %v", err)
	}
	return m
}

func (m *reconcileMetrics) recordOutcome(ctx context.Context, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *reconcileMetrics) recordPass(ctx context.Context, summary PassSummary, durationMs float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "aborted"
	}
	if m.passes != nil {
		m.passes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
	if m.passDurationMs != nil {
		m.passDurationMs.Record(ctx, durationMs, metric.WithAttributes(attribute.Int("processed", summary.Processed)))
	}
}

func (m *reconcileMetrics) alert(ctx context.Context, action string) {
	if m == nil || m.alerts == nil {
		return
	}
	m.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// Alerter recebe os casos que precisam de reconciliação manual
type Alerter interface {
	SettlementFailed(ctx context.Context, order Order, action string, err error)
}

// logAlerter writes the alert to the service log.
type logAlerter struct{}

// NewLogAlerter cria um Alerter baseado em log
func NewLogAlerter() Alerter {
	return logAlerter{}
}

func (logAlerter) SettlementFailed(_ context.Context, order Order, action string, err error) {
	log.Printf("🚨 [ALERT] Manual reconciliation required | OrderID=%s | HoldID=%s | Action=%s | Error=%v",
		order.ID, order.PaymentHoldID, action, err)
}
