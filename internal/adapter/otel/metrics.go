package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "fusion"

// Metrics holds all fusion metric instruments.
type Metrics struct {
	DocumentsFused   metric.Int64Counter
	SlotsFinalized   metric.Int64Counter
	Conflicts        metric.Int64Counter
	Escalations      metric.Int64Counter
	Adjudications    metric.Int64Counter
	ValidationFails  metric.Int64Counter
	FusionDuration   metric.Float64Histogram
	ProviderLatency  metric.Float64Histogram
	EscalationRounds metric.Int64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.DocumentsFused, err = meter.Int64Counter("fusion.documents.fused",
		metric.WithDescription("Number of documents fused"))
	if err != nil {
		return nil, err
	}

	m.SlotsFinalized, err = meter.Int64Counter("fusion.slots.finalized",
		metric.WithDescription("Number of slots finalized"))
	if err != nil {
		return nil, err
	}

	m.Conflicts, err = meter.Int64Counter("fusion.conflicts.detected",
		metric.WithDescription("Number of slots with a disagreement class"))
	if err != nil {
		return nil, err
	}

	m.Escalations, err = meter.Int64Counter("fusion.escalations",
		metric.WithDescription("Number of escalation provider calls"))
	if err != nil {
		return nil, err
	}

	m.Adjudications, err = meter.Int64Counter("fusion.adjudications",
		metric.WithDescription("Number of slots decided by the adjudicator"))
	if err != nil {
		return nil, err
	}

	m.ValidationFails, err = meter.Int64Counter("fusion.validation.failures",
		metric.WithDescription("Number of slots finalized with validation_failed"))
	if err != nil {
		return nil, err
	}

	m.FusionDuration, err = meter.Float64Histogram("fusion.document.duration_seconds",
		metric.WithDescription("Per-document fusion duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.ProviderLatency, err = meter.Float64Histogram("fusion.provider.latency_seconds",
		metric.WithDescription("Extraction provider call latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.EscalationRounds, err = meter.Int64Histogram("fusion.slot.rounds",
		metric.WithDescription("Escalation rounds per finalized slot"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
