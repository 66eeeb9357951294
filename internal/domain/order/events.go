package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderCreatedEvent is emitted once a pending order and its lines are stored.
type OrderCreatedEvent struct {
	OrderID    string
	UserID     string
	GuestName  string
	Total      decimal.Decimal
	Lines      int
	OccurredAt time.Time
}

func (OrderCreatedEvent) EventName() string { return "order.created" }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:    o.ID,
		UserID:     o.Customer.UserID,
		GuestName:  o.Customer.GuestName,
		Total:      o.Total,
		Lines:      len(o.Lines),
		OccurredAt: time.Now().UTC(),
	}
}

type OrderPaymentInitiatedEvent struct {
	OrderID           string
	ExternalReference string
	OccurredAt        time.Time
}

func (OrderPaymentInitiatedEvent) EventName() string { return "order.payment_initiated" }

func NewOrderPaymentInitiatedEvent(o *Order) OrderPaymentInitiatedEvent {
	evt := OrderPaymentInitiatedEvent{OrderID: o.ID, OccurredAt: time.Now().UTC()}
	if o.ExternalReference != nil {
		evt.ExternalReference = *o.ExternalReference
	}
	return evt
}

type OrderCompletedEvent struct {
	OrderID    string
	Receipt    string
	Stock      StockState
	OccurredAt time.Time
}

func (OrderCompletedEvent) EventName() string { return "order.completed" }

func NewOrderCompletedEvent(o *Order) OrderCompletedEvent {
	evt := OrderCompletedEvent{OrderID: o.ID, Stock: o.Stock, OccurredAt: time.Now().UTC()}
	if o.PaymentReceipt != nil {
		evt.Receipt = *o.PaymentReceipt
	}
	return evt
}

type OrderFailedEvent struct {
	OrderID    string
	Reason     string
	OccurredAt time.Time
}

func (OrderFailedEvent) EventName() string { return "order.failed" }

func NewOrderFailedEvent(o *Order) OrderFailedEvent {
	return OrderFailedEvent{
		OrderID:    o.ID,
		Reason:     o.FailureReason,
		OccurredAt: time.Now().UTC(),
	}
}
