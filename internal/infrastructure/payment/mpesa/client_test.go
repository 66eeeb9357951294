package mpesa_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/mpesa"
)

type darajaStub struct {
	tokenCalls atomic.Int32
	lastPush   map[string]any
	pushStatus int
	pushBody   string
}

func (d *darajaStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		d.tokenCalls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&d.lastPush))
		w.WriteHeader(d.pushStatus)
		_, _ = w.Write([]byte(d.pushBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(url string) *mpesa.Client {
	return mpesa.New(mpesa.Config{
		BaseURL:        url,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		PassKey:        "pk",
		CallbackURL:    "https://shop.example/payments/callback",
	}, nil)
}

func TestInitiateReturnsCheckoutRequestID(t *testing.T) {
	stub := &darajaStub{
		pushStatus: http.StatusOK,
		pushBody:   `{"MerchantRequestID":"m1","CheckoutRequestID":"ws_CO_123","ResponseCode":"0","ResponseDescription":"Success"}`,
	}
	client := newClient(stub.server(t).URL)

	req := payment.InitiateRequest{Reference: "o-1", Amount: decimal.RequireFromString("249.50"), Destination: "254712345678"}
	res, err := client.Initiate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_123", res.ExternalReference)

	assert.Equal(t, "ORDO1", stub.lastPush["AccountReference"])
	assert.Equal(t, "254712345678", stub.lastPush["PhoneNumber"])
	assert.Equal(t, "CustomerPayBillOnline", stub.lastPush["TransactionType"])
	assert.EqualValues(t, 250, stub.lastPush["Amount"])
	ts, _ := stub.lastPush["Timestamp"].(string)
	assert.Len(t, ts, 14)
	assert.Equal(t, mpesa.Password("174379", "pk", ts), stub.lastPush["Password"])

	// the token is cached between pushes
	_, err = client.Initiate(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stub.tokenCalls.Load())
}

func TestAccountReferenceFitsDaraja(t *testing.T) {
	ref := mpesa.AccountReference("3f2b9c1e-7a4d-4e8f-9b6a-1c2d3e4f5a6b")
	assert.Equal(t, "ORD3F2B9C1E7", ref)
	assert.LessOrEqual(t, len(ref), 12)
	assert.Equal(t, "ORD", mpesa.AccountReference(""))
}

func TestInitiateRejectsNonZeroResponseCode(t *testing.T) {
	stub := &darajaStub{
		pushStatus: http.StatusBadRequest,
		pushBody:   `{"requestId":"r1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`,
	}
	client := newClient(stub.server(t).URL)

	_, err := client.Initiate(context.Background(), payment.InitiateRequest{
		Reference: "o-2", Amount: decimal.NewFromInt(10), Destination: "254700000000",
	})
	require.ErrorIs(t, err, mpesa.ErrRejected)
	assert.Contains(t, err.Error(), "Invalid PhoneNumber")
}

func TestInitiateFailsWithoutToken(t *testing.T) {
	stub := &darajaStub{}
	client := mpesa.New(mpesa.Config{BaseURL: stub.server(t).URL, ConsumerKey: "wrong"}, nil)

	_, err := client.Initiate(context.Background(), payment.InitiateRequest{Reference: "o-3", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, mpesa.ErrAuth)
}
