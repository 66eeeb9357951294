package workerpresentation

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

// EventScope names one delivery of a domain event to a background handler.
// Keep the values low-cardinality except OrderID, which is what operators search by.
type EventScope struct {
	Event   string
	UseCase string
	OrderID string
	// DeliveryID is generated when empty.
	DeliveryID string
}

// WithEventContext puts a logger for this delivery on ctx: delivery id, the active span ids
// and whatever the scope carries.
func WithEventContext(ctx context.Context, base observability.Logger, scope EventScope) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}
	if scope.DeliveryID == "" {
		scope.DeliveryID = uuid.NewString()
	}

	fields := make([]observability.Field, 0, 6)
	fields = append(fields, observability.F("delivery_id", scope.DeliveryID))

	sc := trace.SpanContextFromContext(ctx)
	if sc.TraceID().IsValid() {
		fields = append(fields, observability.F("trace_id", sc.TraceID().String()))
	}
	if sc.SpanID().IsValid() {
		fields = append(fields, observability.F("span_id", sc.SpanID().String()))
	}
	for _, kv := range [][2]string{{"event", scope.Event}, {"use_case", scope.UseCase}, {"order_id", scope.OrderID}} {
		if kv[1] != "" {
			fields = append(fields, observability.F(kv[0], kv[1]))
		}
	}
	return logctx.With(ctx, base.With(fields...))
}
