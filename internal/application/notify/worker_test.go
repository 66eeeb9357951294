package notify_test

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/notify"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingBus struct {
	handlers map[string][]domoutbox.Handler
}

func (b *recordingBus) Subscribe(name string, h domoutbox.Handler) {
	if b.handlers == nil {
		b.handlers = map[string][]domoutbox.Handler{}
	}
	b.handlers[name] = append(b.handlers[name], h)
}

func (b *recordingBus) deliver(t *testing.T, e domoutbox.Event) {
	t.Helper()
	for _, h := range b.handlers[e.EventName()] {
		require.NoError(t, h(context.Background(), e))
	}
}

type tel struct{ log observability.Logger }

func (t tel) Tracer() observability.Tracer   { return observability.NopTracer() }
func (t tel) Logger() observability.Logger   { return t.log }
func (t tel) Metrics() observability.Metrics { return observability.NopMetrics() }

func TestWorkerSubscribesToEveryEvent(t *testing.T) {
	bus := &recordingBus{}
	notify.New(bus, observability.Nop()).Start()

	for _, name := range domoutbox.Names {
		assert.Len(t, bus.handlers[name], 1, name)
	}
}

func TestWorkerLogsOperatorAlerts(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	bus := &recordingBus{}
	notify.New(bus, tel{log: zaplogger.Wrap(zap.New(core))}).Start()

	alert := domcatalog.NewStockAlert("a1", "samosa", "o1", 3, 1)
	bus.deliver(t, domcatalog.NewStockDiscrepancyEvent(alert))
	bus.deliver(t, domorder.OrderFailedEvent{OrderID: "o2", Reason: "cancelled"})

	require.Equal(t, 1, logs.FilterMessage("operator_stock_alert").Len())
	entry := logs.FilterMessage("operator_stock_alert").All()[0]
	assert.Equal(t, "samosa", entry.ContextMap()["item_id"])
	assert.EqualValues(t, 2, entry.ContextMap()["shortfall"])
	assert.NotEmpty(t, entry.ContextMap()["delivery_id"])

	failed := logs.FilterMessage("customer_order_failed")
	require.Equal(t, 1, failed.Len())
	assert.Equal(t, "o2", failed.All()[0].ContextMap()["order_id"])
	assert.Equal(t, "order.failed", failed.All()[0].ContextMap()["event"])
}
