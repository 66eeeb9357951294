// Package sandbox is an in-process payment provider for local runs. It accepts every charge
// and later reports a random outcome through the same path a real provider callback takes.
package sandbox

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

const (
	DefaultSuccessRate = 0.7
	referencePrefix    = "sandbox_"
	declinedCode       = "1032"
)

// Sink receives simulated callbacks.
type Sink func(ctx context.Context, res payment.CallbackResult) error

type Options struct {
	SuccessRate   float64
	CallbackDelay time.Duration
	Seed          int64
}

type Gateway struct {
	mu          sync.Mutex
	random      *rand.Rand
	successRate float64
	delay       time.Duration
	sink        Sink
	wg          sync.WaitGroup
	log         observability.Logger
}

func New(opts Options, logger observability.Logger) *Gateway {
	if opts.SuccessRate < 0 || opts.SuccessRate > 1 {
		opts.SuccessRate = DefaultSuccessRate
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Gateway{
		random:      rand.New(rand.NewSource(seed)),
		successRate: opts.SuccessRate,
		delay:       opts.CallbackDelay,
		log:         logger.With(observability.F("component", "sandbox_gateway")),
	}
}

// SetSink wires the callback receiver. Without one, charges stay processing forever.
func (g *Gateway) SetSink(s Sink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sink = s
}

func (g *Gateway) Initiate(ctx context.Context, req payment.InitiateRequest) (payment.Initiation, error) {
	if req.Reference == "" {
		return payment.Initiation{}, errors.New("sandbox: reference is required")
	}
	if !req.Amount.IsPositive() {
		return payment.Initiation{}, errors.New("sandbox: amount must be greater than zero")
	}
	if err := ctx.Err(); err != nil {
		return payment.Initiation{}, err
	}

	ref := referencePrefix + uuid.NewString()

	g.mu.Lock()
	sink := g.sink
	paid := g.random.Float64() < g.successRate
	g.mu.Unlock()

	if sink != nil {
		g.wg.Add(1)
		go g.dispatch(context.WithoutCancel(ctx), sink, ref, req.Reference, paid)
	}
	return payment.Initiation{ExternalReference: ref}, nil
}

func (g *Gateway) dispatch(ctx context.Context, sink Sink, ref, orderID string, paid bool) {
	defer g.wg.Done()
	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	res := payment.CallbackResult{ExternalReference: ref, Succeeded: paid}
	if paid {
		res.ResultCode = "0"
		res.Receipt = "SBX" + ref[len(referencePrefix):len(referencePrefix)+8]
		res.Description = "sandbox payment accepted"
	} else {
		res.ResultCode = declinedCode
		res.Description = "payment_declined"
	}

	// the checkout may not have stored the reference yet; retry briefly like a provider would
	var err error
	for attempt := range 3 {
		if err = sink(ctx, res); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	g.log.Warn("sandbox_callback_failed",
		observability.F("order_id", orderID),
		observability.F("external_reference", ref),
		observability.Err(err),
	)
}

// Wait blocks until in-flight callbacks are delivered.
func (g *Gateway) Wait() { g.wg.Wait() }
