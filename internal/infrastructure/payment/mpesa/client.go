// Package mpesa initiates Safaricom Daraja STK push charges and parses their callbacks.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

const (
	SandboxBaseURL = "https://sandbox.safaricom.co.ke"

	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	stkPath   = "/mpesa/stkpush/v1/processrequest"

	timestampLayout = "20060102150405"
	transactionType = "CustomerPayBillOnline"
	acceptedCode    = "0"
	tokenSkew       = 30 * time.Second
)

var (
	ErrRejected = errors.New("mpesa: request rejected")
	ErrAuth     = errors.New("mpesa: access token unavailable")
)

type Config struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	CallbackURL     string
	TransactionDesc string
	Timeout         time.Duration
}

// Client talks to Daraja. Calls go through a circuit breaker so a provider outage fails fast.
type Client struct {
	cfg  Config
	http *http.Client
	cb   *gobreaker.CircuitBreaker
	log  observability.Logger
	now  func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func New(cfg Config, logger observability.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TransactionDesc == "" {
		cfg.TransactionDesc = "Food Order Payment"
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	log := logger.With(observability.F("component", "mpesa"))

	settings := gobreaker.Settings{
		Name:        "mpesa",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit_breaker_state_changed",
				observability.F("name", name),
				observability.F("from", from.String()),
				observability.F("to", to.String()),
			)
		},
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		cb:   gobreaker.NewCircuitBreaker(settings),
		log:  log,
		now:  time.Now,
	}
}

func executeWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return *new(T), err
	}
	return res.(T), nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// Initiate sends an STK push. Daraja only takes whole shillings, so the amount is rounded up.
func (c *Client) Initiate(ctx context.Context, req payment.InitiateRequest) (payment.Initiation, error) {
	return executeWithBreaker(c.cb, func() (payment.Initiation, error) {
		return c.stkPush(ctx, req)
	})
}

func (c *Client) stkPush(ctx context.Context, req payment.InitiateRequest) (payment.Initiation, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return payment.Initiation{}, err
	}

	ts := c.now().Format(timestampLayout)
	body := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, ts),
		Timestamp:         ts,
		TransactionType:   transactionType,
		Amount:            req.Amount.Ceil().IntPart(),
		PartyA:            req.Destination,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.Destination,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  AccountReference(req.Reference),
		TransactionDesc:   c.cfg.TransactionDesc,
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return payment.Initiation{}, fmt.Errorf("mpesa: encode stk push: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+stkPath, bytes.NewReader(buf))
	if err != nil {
		return payment.Initiation{}, fmt.Errorf("mpesa: build stk push: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	var out stkPushResponse
	status, err := c.do(httpReq, &out)
	if err != nil {
		return payment.Initiation{}, err
	}
	if status/100 != 2 || out.ResponseCode != acceptedCode || out.CheckoutRequestID == "" {
		msg := out.ResponseDescription
		if msg == "" {
			msg = out.ErrorMessage
		}
		return payment.Initiation{}, fmt.Errorf("%w: http %d code %q: %s", ErrRejected, status, out.ResponseCode, msg)
	}

	c.log.Debug("mpesa_stk_push_accepted",
		observability.F("order_id", req.Reference),
		observability.F("checkout_request_id", out.CheckoutRequestID),
	)
	return payment.Initiation{ExternalReference: out.CheckoutRequestID}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// accessToken returns a cached OAuth token, fetching a new one shortly before expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExp) {
		return c.token, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("mpesa: build token request: %w", err)
	}
	httpReq.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	var out tokenResponse
	status, err := c.do(httpReq, &out)
	if err != nil {
		return "", err
	}
	if status/100 != 2 || out.AccessToken == "" {
		return "", fmt.Errorf("%w: http %d", ErrAuth, status)
	}

	ttl := time.Hour
	if secs, err := strconv.Atoi(out.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	c.token = out.AccessToken
	c.tokenExp = c.now().Add(ttl - tokenSkew)
	return c.token, nil
}

func (c *Client) do(req *http.Request, out any) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("mpesa: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("mpesa: read response: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("mpesa: decode response (http %d): %w", resp.StatusCode, err)
		}
	}
	return resp.StatusCode, nil
}

// maxAccountReference is the longest AccountReference Daraja accepts.
const maxAccountReference = 12

// AccountReference shows the order on the customer's handset: "ORD" followed by as many
// letters and digits of the order id as fit. The full id travels in our own ledger, not here.
func AccountReference(orderID string) string {
	var b strings.Builder
	b.WriteString("ORD")
	for _, r := range strings.ToUpper(orderID) {
		if b.Len() == maxAccountReference {
			break
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Password is base64(shortcode + passkey + timestamp) as Daraja expects.
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}
