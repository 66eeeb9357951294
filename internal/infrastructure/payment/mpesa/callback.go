package mpesa

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

type callbackEnvelope struct {
	Body struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string          `json:"MerchantRequestID"`
	CheckoutRequestID string          `json:"CheckoutRequestID"`
	ResultCode        json.RawMessage `json:"ResultCode"`
	ResultDesc        string          `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []struct {
			Name  string `json:"Name"`
			Value any    `json:"Value"`
		} `json:"Item"`
	} `json:"CallbackMetadata"`
}

// CallbackParser reads Daraja STK callbacks.
type CallbackParser struct{}

// ParseCallback accepts ResultCode as either a JSON number or a string; "0" means paid.
func (CallbackParser) ParseCallback(raw []byte) (payment.CallbackResult, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return payment.CallbackResult{}, fmt.Errorf("%w: %v", payment.ErrMalformedCallback, err)
	}
	cb := env.Body.StkCallback
	if cb == nil {
		return payment.CallbackResult{}, fmt.Errorf("%w: missing Body.stkCallback", payment.ErrMalformedCallback)
	}
	if cb.CheckoutRequestID == "" {
		return payment.CallbackResult{}, fmt.Errorf("%w: missing CheckoutRequestID", payment.ErrMalformedCallback)
	}
	code := strings.Trim(strings.TrimSpace(string(cb.ResultCode)), `"`)
	if code == "" || code == "null" {
		return payment.CallbackResult{}, fmt.Errorf("%w: missing ResultCode", payment.ErrMalformedCallback)
	}

	res := payment.CallbackResult{
		ExternalReference: cb.CheckoutRequestID,
		Succeeded:         code == acceptedCode,
		ResultCode:        code,
		Description:       cb.ResultDesc,
	}
	for _, item := range cb.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" && item.Value != nil {
			res.Receipt = fmt.Sprint(item.Value)
		}
	}
	return res, nil
}
