// Package kafka relays domain events from the in-process bus to a kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

const peerKafka = "kafka"

// MessageWriter is the part of *kafka.Writer the relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the wire format of every relayed event.
type Envelope struct {
	Event      string          `json:"event"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type Relay struct {
	w      MessageWriter
	topic  string
	log    observability.Logger
	calls  observability.Counter
	timing observability.Histogram
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

func NewRelay(w MessageWriter, topic string, tel observability.Observability) *Relay {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Relay{
		w:      w,
		topic:  topic,
		log:    tel.Logger().With(observability.F("component", "kafka_relay"), observability.F("topic", topic)),
		calls:  tel.Metrics().Counter(observability.MExternalRequests),
		timing: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

// Register subscribes the relay to every event the checkout core publishes.
func (r *Relay) Register(sub domoutbox.Subscriber) {
	for _, name := range domoutbox.Names {
		sub.Subscribe(name, r.Handle)
	}
}

func (r *Relay) Handle(ctx context.Context, e domoutbox.Event) error {
	msg, err := Encode(e)
	if err != nil {
		return err
	}

	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	start := time.Now()
	err = r.w.WriteMessages(ctx, msg)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.calls.Add(1,
		observability.L("peer", peerKafka),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	r.timing.Observe(time.Since(start).Seconds(),
		observability.L("peer", peerKafka),
		observability.L("endpoint", e.EventName()),
	)

	logger := logctx.FromOr(ctx, r.log)
	if err != nil {
		logger.Warn("kafka_relay_failed", observability.F("event", e.EventName()), observability.Err(err))
		return fmt.Errorf("kafka relay %s: %w", e.EventName(), err)
	}
	logger.Debug("kafka_relayed", observability.F("event", e.EventName()), observability.F("key", string(msg.Key)))
	return nil
}

func (r *Relay) Close() error {
	return r.w.Close()
}

// headerCarrier lets a text-map propagator write trace context into message headers.
type headerCarrier struct{ msg *kafka.Message }

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// Encode wraps the event in an Envelope keyed by order id so one order's events stay on one partition.
func Encode(e domoutbox.Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka encode %s: %w", e.EventName(), err)
	}
	key, at := keyOf(e)
	body, err := json.Marshal(Envelope{
		Event:      e.EventName(),
		Key:        key,
		OccurredAt: at,
		Payload:    payload,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka encode %s: %w", e.EventName(), err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(e.EventName())},
		},
	}, nil
}

func keyOf(e domoutbox.Event) (string, time.Time) {
	switch evt := e.(type) {
	case order.OrderCreatedEvent:
		return evt.OrderID, evt.OccurredAt
	case order.OrderPaymentInitiatedEvent:
		return evt.OrderID, evt.OccurredAt
	case order.OrderCompletedEvent:
		return evt.OrderID, evt.OccurredAt
	case order.OrderFailedEvent:
		return evt.OrderID, evt.OccurredAt
	case catalog.StockDiscrepancyEvent:
		return evt.OrderID, evt.OccurredAt
	default:
		return strings.ReplaceAll(e.EventName(), ".", "_"), time.Now().UTC()
	}
}
