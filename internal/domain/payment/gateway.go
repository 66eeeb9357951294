package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrMalformedCallback = errors.New("payment: malformed callback payload")

// InitiateRequest asks the provider to charge Destination for Amount, correlated by Reference (the order id).
type InitiateRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Destination string
}

type Initiation struct {
	ExternalReference string
}

// Gateway starts a mobile-money charge. Any transport, auth, timeout or shape problem is returned as an error.
type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (Initiation, error)
}

// CallbackResult is the provider-neutral outcome of an inbound payment notification.
type CallbackResult struct {
	ExternalReference string
	Succeeded         bool
	Receipt           string
	ResultCode        string
	Description       string
}

// CallbackParser turns a raw provider payload into a CallbackResult.
type CallbackParser interface {
	ParseCallback(raw []byte) (CallbackResult, error)
}
