// Package fault classifies errors returned by the checkout core so the surrounding
// layers can react by kind instead of by message.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindExternalService    Kind = "external_service"
	KindInvariantViolation Kind = "invariant_violation"
	KindForbidden          Kind = "forbidden"
)

var (
	ErrValidation         = errors.New("validation")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrExternalService    = errors.New("external service")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrForbidden          = errors.New("forbidden")
)

const (
	CodeEmptyCart               = "EMPTY_CART"
	CodeInvalidCustomerInfo     = "INVALID_CUSTOMER_INFO"
	CodeInvalidQuantity         = "INVALID_QUANTITY"
	CodeInvalidPrice            = "INVALID_PRICE"
	CodeInvalidCategory         = "INVALID_CATEGORY"
	CodeSessionBusy             = "SESSION_BUSY"
	CodeStockConflict           = "STOCK_CONFLICT"
	CodeItemUnavailable         = "ITEM_UNAVAILABLE"
	CodeItemNotFound            = "ITEM_NOT_FOUND"
	CodeItemReferenced          = "ITEM_REFERENCED"
	CodeOrderNotFound           = "ORDER_NOT_FOUND"
	CodeOrderNotTerminal        = "ORDER_NOT_TERMINAL"
	CodeOrderState              = "ORDER_STATE_CONFLICT"
	CodeUnknownReference        = "UNKNOWN_REFERENCE"
	CodeMalformedCallback       = "MALFORMED_CALLBACK"
	CodeAlertNotFound           = "ALERT_NOT_FOUND"
	CodePaymentInitiationFailed = "PAYMENT_INITIATION_FAILED"
	CodeNegativeStock           = "NEGATIVE_STOCK"
	CodeNotPrivileged           = "NOT_PRIVILEGED"
)

// Error is a classified failure. ItemID is set for stock related failures.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	ItemID  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels, so errors.Is(err, fault.ErrConflict) works through wrapping.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindExternalService:
		return ErrExternalService
	case KindInvariantViolation:
		return ErrInvariantViolation
	case KindForbidden:
		return ErrForbidden
	default:
		return nil
	}
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

func Validation(code, msg string) *Error { return New(KindValidation, code, msg) }
func NotFound(code, msg string) *Error   { return New(KindNotFound, code, msg) }
func Conflict(code, msg string) *Error   { return New(KindConflict, code, msg) }
func Forbidden(msg string) *Error        { return New(KindForbidden, CodeNotPrivileged, msg) }

// StockConflict reports the first cart line that can no longer be satisfied.
func StockConflict(itemID string, requested, available int) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    CodeStockConflict,
		Message: fmt.Sprintf("item %s: requested %d, available %d", itemID, requested, available),
		ItemID:  itemID,
	}
}

// KindOf returns the kind of the first classified error in the chain, or "" when none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// CodeOf returns the code of the first classified error in the chain, or "" when none.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
