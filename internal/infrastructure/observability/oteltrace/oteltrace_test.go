package oteltrace_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/oteltrace"
)

func TestNewInstallsTraceContextPropagation(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tr := oteltrace.New("")
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")

	carrier := propagation.MapCarrier{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)
	ctx, span := tr.Start(ctx, "checkout.initiate")
	defer span.End()

	// without an SDK provider the span is non-recording but keeps the parent's trace id
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext().TraceID().String())
	assert.NotNil(t, ctx)
}
