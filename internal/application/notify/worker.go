package notify

import (
	"context"
	"time"

	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/worker"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	workerService = "notify-worker"
	spanPrefix    = "Worker."
)

// Worker turns checkout events into customer and operator notifications. The delivery channel is the
// structured log stream; anything that tails it (SMS bridge, pager) hangs off these lines.
type Worker struct {
	subscriber domoutbox.Subscriber
	tel        observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // events_handled_total{event,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func New(subscriber domoutbox.Subscriber, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber:   subscriber,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   tel.Metrics().Counter(observability.MEventsHandled),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	for _, name := range domoutbox.Names {
		w.subscriber.Subscribe(name, w.handle)
	}
}

func (w *Worker) handle(ctx context.Context, e domoutbox.Event) error {
	useCase := "notify." + e.EventName()
	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+e.EventName(),
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
	)
	ctx = workerpresentation.WithEventContext(ctx, logctx.FromOr(ctx, w.log), workerpresentation.EventScope{
		Event:   e.EventName(),
		UseCase: useCase,
		OrderID: orderIDOf(e),
	})
	logger := logctx.FromOr(ctx, w.log)

	start := time.Now()
	outcome := "success"
	defer func() {
		w.reqCounter.Add(1,
			observability.L("event", e.EventName()),
			observability.L("outcome", outcome),
		)
		w.durHistogram.Observe(time.Since(start).Seconds(),
			observability.L("use_case", useCase),
		)
		span.SetStatus(codes.Ok, outcome)
		span.End()
	}()

	switch evt := e.(type) {
	case domorder.OrderCreatedEvent:
		logger.Info("order_received",
			observability.F("order_id", evt.OrderID),
			observability.F("total", evt.Total.StringFixed(2)),
			observability.F("lines", evt.Lines),
		)
	case domorder.OrderPaymentInitiatedEvent:
		logger.Info("customer_payment_prompt_sent",
			observability.F("order_id", evt.OrderID),
			observability.F("external_reference", evt.ExternalReference),
		)
	case domorder.OrderCompletedEvent:
		logger.Info("customer_order_confirmed",
			observability.F("order_id", evt.OrderID),
			observability.F("receipt", evt.Receipt),
			observability.F("stock", string(evt.Stock)),
		)
		if evt.Stock != domorder.StockCommitted {
			logger.Warn("operator_stock_commit_pending", observability.F("order_id", evt.OrderID))
		}
	case domorder.OrderFailedEvent:
		logger.Info("customer_order_failed",
			observability.F("order_id", evt.OrderID),
			observability.F("reason", evt.Reason),
		)
	case domcatalog.StockDiscrepancyEvent:
		logger.Warn("operator_stock_alert",
			observability.F("alert_id", evt.AlertID),
			observability.F("item_id", evt.ItemID),
			observability.F("order_id", evt.OrderID),
			observability.F("shortfall", evt.Shortfall),
		)
	default:
		outcome = "ignored"
	}
	return nil
}

func orderIDOf(e domoutbox.Event) string {
	switch evt := e.(type) {
	case domorder.OrderCreatedEvent:
		return evt.OrderID
	case domorder.OrderPaymentInitiatedEvent:
		return evt.OrderID
	case domorder.OrderCompletedEvent:
		return evt.OrderID
	case domorder.OrderFailedEvent:
		return evt.OrderID
	case domcatalog.StockDiscrepancyEvent:
		return evt.OrderID
	}
	return ""
}
