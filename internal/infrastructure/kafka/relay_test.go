package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	relay "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/kafka"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type subscriptions map[string]int

func (s subscriptions) Subscribe(name string, _ domoutbox.Handler) { s[name]++ }

func TestRelayWritesEnvelopeKeyedByOrder(t *testing.T) {
	w := &fakeWriter{}
	r := relay.NewRelay(w, "checkout-events", nil)

	evt := order.OrderCreatedEvent{
		OrderID:    "o-9",
		GuestName:  "Achieng",
		Total:      decimal.RequireFromString("40.00"),
		Lines:      2,
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, r.Handle(context.Background(), evt))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "o-9", string(msg.Key))

	var env relay.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, "order.created", env.Event)
	assert.Equal(t, "o-9", env.Key)
	assert.True(t, evt.OccurredAt.Equal(env.OccurredAt))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "40", payload["Total"])
}

func TestRelaySurfacesWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	r := relay.NewRelay(w, "checkout-events", nil)

	err := r.Handle(context.Background(), order.OrderFailedEvent{OrderID: "o-1", Reason: "cancelled"})
	assert.ErrorContains(t, err, "broker down")
}

func TestRegisterSubscribesToEveryEvent(t *testing.T) {
	subs := subscriptions{}
	relay.NewRelay(&fakeWriter{}, "t", nil).Register(subs)

	for _, name := range domoutbox.Names {
		assert.Equal(t, 1, subs[name], name)
	}
}

func TestRelayCarriesTraceContextInHeaders(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9},
		SpanID:     trace.SpanID{0x00, 0xf0},
		TraceFlags: trace.FlagsSampled,
	})
	w := &fakeWriter{}
	r := relay.NewRelay(w, "checkout-events", nil)
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	require.NoError(t, r.Handle(ctx, order.OrderFailedEvent{OrderID: "o-3", Reason: "declined"}))

	require.Len(t, w.msgs, 1)
	var traceparent string
	for _, h := range w.msgs[0].Headers {
		if h.Key == "traceparent" {
			traceparent = string(h.Value)
		}
	}
	assert.Contains(t, traceparent, sc.TraceID().String())
}
