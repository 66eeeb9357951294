package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	domcart "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/fault"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/session"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	checkoutService          = "checkout-service"
	useCaseInitiate          = "checkout.initiate"
	gatewayPeer              = "payment_gateway"
	gatewayEndpoint          = "initiate"
	DefaultPaymentTimeout    = 30 * time.Second
	DefaultLookupConcurrency = 4
)

var ErrRepository = errors.New("checkout: repository failure")

// Options tunes the checkout orchestrator. Zero values fall back to defaults.
type Options struct {
	PaymentTimeout time.Duration
	// LookupConcurrency caps concurrent catalog reads while re-validating a cart.
	LookupConcurrency int
}

// InitiateCheckoutUseCase turns a session cart into a pending order and asks the gateway to charge it.
type InitiateCheckoutUseCase struct {
	items     domcatalog.Repository
	orders    domain.Repository
	carts     *appcart.Store
	locker    session.Locker
	gateway   dompayment.Gateway
	ids       application.IDGenerator
	publisher *application.Publisher
	validate  *validator.Validate
	opts      Options
	in        application.Instruments

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInitiateCheckoutUseCase(
	items domcatalog.Repository,
	orders domain.Repository,
	carts *appcart.Store,
	locker session.Locker,
	gateway dompayment.Gateway,
	ids application.IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts Options,
) *InitiateCheckoutUseCase {
	in := application.NewInstruments(tel, checkoutService)
	if opts.PaymentTimeout <= 0 {
		opts.PaymentTimeout = DefaultPaymentTimeout
	}
	if opts.LookupConcurrency <= 0 {
		opts.LookupConcurrency = DefaultLookupConcurrency
	}
	m := in.Tel().Metrics()
	return &InitiateCheckoutUseCase{
		items:        items,
		orders:       orders,
		carts:        carts,
		locker:       locker,
		gateway:      gateway,
		ids:          ids,
		publisher:    application.NewPublisher(publisher, in.Tel()),
		validate:     newValidator(),
		opts:         opts,
		in:           in,
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

type InitiateCheckoutInput struct {
	Session  session.Session
	Customer CustomerInfo
}

type InitiateCheckoutResult struct {
	OrderID           string
	Status            domain.Status
	Total             string
	ExternalReference string
}

// Execute runs the checkout: validate, snapshot prices into a pending order, initiate payment.
// Stock is only checked here; it is taken when the payment callback confirms the charge.
func (uc *InitiateCheckoutUseCase) Execute(ctx context.Context, cmd InitiateCheckoutInput) (_ *InitiateCheckoutResult, err error) {
	ctx, call := uc.in.Begin(ctx, useCaseInitiate, "InitiateCheckout", attribute.String("session.id", cmd.Session.ID))
	defer func() { call.Done(ctx, err) }()
	logger := call.Log

	unlock, lerr := appcart.Lock(ctx, uc.locker, cmd.Session.ID)
	if lerr != nil {
		return nil, call.Fail(fault.CodeSessionBusy, lerr)
	}
	defer unlock()

	c, cerr := uc.carts.Load(ctx, cmd.Session.ID)
	if cerr != nil {
		return nil, call.Fail("CART_LOAD_FAILED", cerr)
	}
	if c.IsEmpty() {
		return nil, call.Fail("", fault.Validation(fault.CodeEmptyCart, "cart is empty"))
	}

	cmd.Customer.Phone = NormalizePhone(cmd.Customer.Phone)
	if verr := uc.validateCustomer(cmd.Customer, cmd.Session.UserID); verr != nil {
		return nil, call.Fail(fault.CodeInvalidCustomerInfo, verr)
	}

	lines, serr := uc.priceLines(ctx, c.Lines())
	if serr != nil {
		status := fault.CodeOf(serr)
		if status == "" {
			status = "CATALOG_LOOKUP_FAILED"
		}
		return nil, call.Fail(status, serr)
	}

	customer := domain.Customer{
		UserID:    cmd.Session.UserID,
		GuestName: cmd.Customer.Name,
		Phone:     cmd.Customer.Phone,
	}
	orderID := uc.ids.NewID()
	call.With(observability.F("order_id", orderID))
	entity, derr := domain.New(orderID, customer, lines)
	if derr != nil {
		return nil, call.Fail("DOMAIN_CONSTRUCTION_FAILED", fault.Wrap(fault.KindValidation, fault.CodeInvalidCustomerInfo, derr))
	}
	if err := ctx.Err(); err != nil {
		return nil, call.Fail("CONTEXT_CANCELED", err)
	}
	if err := uc.orders.Insert(ctx, entity); err != nil {
		return nil, call.Fail("REPO_INSERT_FAILED", fmt.Errorf("%w: %w", ErrRepository, err))
	}
	span := call.Span()
	span.SetAttributes(attribute.String("order.id", orderID))
	_ = uc.publisher.Publish(ctx, logger, domain.NewOrderCreatedEvent(entity))

	// From here the order exists; finish its bookkeeping even if the caller goes away.
	persistCtx := context.WithoutCancel(ctx)

	initiation, gerr := uc.initiatePayment(ctx, entity)
	if gerr != nil {
		if terr := entity.InitiationFailed(gerr.Error()); terr == nil {
			if uerr := uc.orders.Transition(persistCtx, entity, domain.StatusPending); uerr != nil {
				logger.Error("order_fail_persist_failed",
					observability.F("order_id", orderID),
					observability.Err(uerr),
				)
			}
		}
		_ = uc.publisher.Publish(persistCtx, logger, domain.NewOrderFailedEvent(entity))
		logger.Warn("checkout_payment_initiation_failed",
			observability.F("order_id", orderID),
			observability.Err(gerr),
		)
		return nil, call.Fail(fault.CodePaymentInitiationFailed,
			fault.Wrap(fault.KindExternalService, fault.CodePaymentInitiationFailed, gerr))
	}

	if err := entity.PaymentInitiated(initiation.ExternalReference); err != nil {
		return nil, call.Fail("STATE_TRANSITION_FAILED", fmt.Errorf("checkout: payment initiated transition: %w", err))
	}
	if err := uc.orders.Transition(persistCtx, entity, domain.StatusPending); err != nil {
		return nil, call.Fail("ORDER_UPDATE_FAILED", fmt.Errorf("%w: %w", ErrRepository, err))
	}

	if err := uc.carts.Clear(persistCtx, cmd.Session.ID); err != nil {
		call.Status = "CART_CLEAR_FAILED"
		logger.Warn("cart_clear_failed",
			observability.F("order_id", orderID),
			observability.Err(err),
		)
	}
	_ = uc.publisher.Publish(persistCtx, logger, domain.NewOrderPaymentInitiatedEvent(entity))

	span.SetAttributes(attribute.String("order.status", string(entity.Status)))
	span.AddEvent("order.payment_initiated",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)

	return &InitiateCheckoutResult{
		OrderID:           entity.ID,
		Status:            entity.Status,
		Total:             entity.Total.StringFixed(2),
		ExternalReference: initiation.ExternalReference,
	}, nil
}

// priceLines re-reads every cart line from the catalog concurrently, then walks them in cart order so the
// reported conflict is always the first offending line.
func (uc *InitiateCheckoutUseCase) priceLines(ctx context.Context, cartLines []domcart.Line) ([]domain.Line, error) {
	found := make([]*domcatalog.Item, len(cartLines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.opts.LookupConcurrency)
	for i, l := range cartLines {
		g.Go(func() error {
			item, err := uc.items.Get(gctx, l.ItemID)
			if errors.Is(err, domcatalog.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("checkout: lookup %s: %w", l.ItemID, err)
			}
			found[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lines := make([]domain.Line, 0, len(cartLines))
	for i, l := range cartLines {
		item := found[i]
		if item == nil {
			return nil, fault.StockConflict(l.ItemID, l.Quantity, 0)
		}
		if !item.Covers(l.Quantity) {
			return nil, fault.StockConflict(l.ItemID, l.Quantity, item.Stock)
		}
		lines = append(lines, domain.Line{
			ItemID:    item.ID,
			Name:      item.Name,
			Quantity:  l.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return lines, nil
}

func (uc *InitiateCheckoutUseCase) initiatePayment(ctx context.Context, o *domain.Order) (dompayment.Initiation, error) {
	callCtx, cancel := context.WithTimeout(ctx, uc.opts.PaymentTimeout)
	defer cancel()

	start := time.Now()
	extOutcome := "success"
	res, err := uc.gateway.Initiate(callCtx, dompayment.InitiateRequest{
		Reference:   o.ID,
		Amount:      o.Total,
		Destination: o.Customer.Phone,
	})
	if err == nil && res.ExternalReference == "" {
		err = errors.New("gateway returned an empty reference")
	}
	if err != nil {
		extOutcome = "error"
		if callCtx.Err() != nil {
			extOutcome = "timeout"
		}
	}

	uc.extCounter.Add(1,
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", gatewayEndpoint),
		observability.L("outcome", extOutcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", gatewayEndpoint),
	)
	return res, err
}
