// Package otel provides the OpenTelemetry instruments for the fusion
// service. Exporter wiring is deployment-specific; InitTracer installs the
// no-op provider until an OTLP endpoint is configured.
package otel

import (
	"context"
	"log/slog"
)

// ShutdownFunc is called to flush and shut down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function. Spans and metrics created
// through the global providers become real once the deployment installs an
// OTLP exporter.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Info("otel: using no-op provider", "service", serviceName)
	return func(_ context.Context) error {
		return nil
	}
}
