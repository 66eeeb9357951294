// Package oteltrace adapts the global OpenTelemetry tracer to the observability.Tracer port.
package oteltrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

const defaultName = "minishop-checkout"

type tracer struct{ t trace.Tracer }

// New returns a tracer named after the service and installs W3C trace-context and baggage
// propagation, which the HTTP middleware reads and the kafka relay writes.
// Spans are exported only once an SDK TracerProvider is set with otel.SetTracerProvider.
func New(name string) observability.Tracer {
	if name == "" {
		name = defaultName
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
