package exporters

import (
	"context"

	"go.opentelemetry.io/otel/sdk/trace"
)

// ConsoleExporter is a no-op span exporter used when running against a local
// store file without a collector.
type ConsoleExporter struct{}

func (c *ConsoleExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	return nil
}

func (c *ConsoleExporter) Shutdown(ctx context.Context) error {
	return nil
}

// NewTracerProvider builds a tracer provider backed by the console exporter.
func NewTracerProvider() *trace.TracerProvider {
	return trace.NewTracerProvider(
		trace.WithSyncer(&ConsoleExporter{}),
	)
}
