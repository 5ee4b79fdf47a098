package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "fusion"

// StartDocumentSpan starts a span for one document fusion run.
func StartDocumentSpan(ctx context.Context, docID, mode, configHash string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "fuse_document",
		trace.WithAttributes(
			attribute.String("doc.id", docID),
			attribute.String("fusion.mode", mode),
			attribute.String("fusion.config_hash", configHash),
		),
	)
}

// StartSlotSpan starts a span for one slot pipeline.
func StartSlotSpan(ctx context.Context, slotID, entityType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "fuse_slot",
		trace.WithAttributes(
			attribute.String("slot.id", slotID),
			attribute.String("slot.entity_type", entityType),
		),
	)
}

// StartEscalationSpan starts a span for one escalation provider call.
func StartEscalationSpan(ctx context.Context, slotID, provider string, round int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "escalate",
		trace.WithAttributes(
			attribute.String("slot.id", slotID),
			attribute.String("provider", provider),
			attribute.Int("round", round),
		),
	)
}
