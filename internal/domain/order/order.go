package order

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: already exists")
	ErrStaleState             = errors.New("order: status changed concurrently")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
	ErrNoLines                = errors.New("order: at least one line is required")
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice           = errors.New("order: unit price must be greater than zero")
	ErrMissingCustomer        = errors.New("order: customer user id or guest name is required")
	ErrNotTerminal            = errors.New("order: only completed or failed orders can be deleted")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StockState tracks whether the lines of a completed order have been taken out of the catalog.
type StockState string

const (
	StockUncommitted StockState = "uncommitted"
	StockCommitting  StockState = "committing"
	StockCommitted   StockState = "committed"
)

// Customer identifies who placed the order: an authenticated user, a named guest, or both.
type Customer struct {
	UserID    string
	GuestName string
	Phone     string
}

// Line is a priced order entry. UnitPrice is frozen at creation.
type Line struct {
	ItemID    string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID                string
	Customer          Customer
	Lines             []Line
	Total             decimal.Decimal
	Status            Status
	ExternalReference *string
	PaymentReceipt    *string
	FailureReason     string
	Stock             StockState
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func New(id string, customer Customer, lines []Line) (*Order, error) {
	if strings.TrimSpace(customer.UserID) == "" && strings.TrimSpace(customer.GuestName) == "" {
		return nil, ErrMissingCustomer
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if !l.UnitPrice.IsPositive() {
			return nil, ErrInvalidPrice
		}
	}

	now := time.Now().UTC()
	return &Order{
		ID:        id,
		Customer:  customer,
		Lines:     append([]Line(nil), lines...),
		Total:     SumLines(lines),
		Status:    StatusPending,
		Stock:     StockUncommitted,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SumLines is the exact sum of quantity * unit price.
func SumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// PaymentInitiated records the provider reference and moves the order to processing.
func (o *Order) PaymentInitiated(externalReference string) error {
	return o.apply(func(s OrderState) (OrderState, error) { return s.OnPaymentInitiated(o, externalReference) })
}

// InitiationFailed fails a pending order whose payment request never reached the provider.
func (o *Order) InitiationFailed(reason string) error {
	return o.apply(func(s OrderState) (OrderState, error) { return s.OnInitiationFailed(o, reason) })
}

func (o *Order) PaymentSucceeded(receipt string) error {
	return o.apply(func(s OrderState) (OrderState, error) { return s.OnPaymentSucceeded(o, receipt) })
}

func (o *Order) PaymentFailed(reason string) error {
	return o.apply(func(s OrderState) (OrderState, error) { return s.OnPaymentFailed(o, reason) })
}

func (o *Order) apply(transition func(OrderState) (OrderState, error)) error {
	next, err := transition(stateFor(o.Status))
	if err != nil {
		return err
	}
	o.Status = next.Status()
	o.touch()
	return nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Lines = append([]Line(nil), o.Lines...)
	if o.ExternalReference != nil {
		ref := *o.ExternalReference
		c.ExternalReference = &ref
	}
	if o.PaymentReceipt != nil {
		rcpt := *o.PaymentReceipt
		c.PaymentReceipt = &rcpt
	}
	return &c
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
