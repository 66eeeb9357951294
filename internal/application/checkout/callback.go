package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/stock"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/fault"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

const useCaseCallback = "checkout.payment_callback"

// CallbackOutcome tells the caller what the callback did. Duplicate callbacks are successful no-ops.
type CallbackOutcome struct {
	OrderID   string
	Status    domain.Status
	Duplicate bool
	Stock     domain.StockState
}

// HandleCallbackUseCase settles a processing order from the provider's asynchronous result.
type HandleCallbackUseCase struct {
	orders     domain.Repository
	reconciler *stock.Reconciler
	parser     dompayment.CallbackParser
	publisher  *application.Publisher
	in         application.Instruments
}

func NewHandleCallbackUseCase(
	orders domain.Repository,
	reconciler *stock.Reconciler,
	parser dompayment.CallbackParser,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *HandleCallbackUseCase {
	in := application.NewInstruments(tel, checkoutService)
	return &HandleCallbackUseCase{
		orders:     orders,
		reconciler: reconciler,
		parser:     parser,
		publisher:  application.NewPublisher(publisher, in.Tel()),
		in:         in,
	}
}

// ExecuteRaw parses a provider payload and settles the order it refers to.
func (uc *HandleCallbackUseCase) ExecuteRaw(ctx context.Context, raw []byte) (*CallbackOutcome, error) {
	if uc.parser == nil {
		return nil, fault.Validation(fault.CodeMalformedCallback, "no callback parser configured")
	}
	res, err := uc.parser.ParseCallback(raw)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, fault.CodeMalformedCallback, err)
	}
	return uc.Execute(ctx, res)
}

func (uc *HandleCallbackUseCase) Execute(ctx context.Context, cb dompayment.CallbackResult) (_ *CallbackOutcome, err error) {
	ctx, call := uc.in.Begin(ctx, useCaseCallback, "HandlePaymentCallback",
		attribute.String("payment.external_reference", cb.ExternalReference),
		attribute.Bool("payment.succeeded", cb.Succeeded),
	)
	defer func() { call.Done(ctx, err) }()
	call.With(
		observability.F("external_reference", cb.ExternalReference),
		observability.F("succeeded", cb.Succeeded),
		observability.F("result_code", cb.ResultCode),
	)

	if cb.ExternalReference == "" {
		return nil, call.Fail("", fault.Validation(fault.CodeMalformedCallback, "external reference is required"))
	}

	o, ferr := uc.orders.FindByExternalReference(ctx, cb.ExternalReference)
	if errors.Is(ferr, domain.ErrNotFound) {
		return nil, call.Fail("", fault.NotFound(fault.CodeUnknownReference, "no order for reference "+cb.ExternalReference))
	}
	if ferr != nil {
		return nil, call.Fail("ORDER_LOAD_FAILED", fmt.Errorf("%w: %w", ErrRepository, ferr))
	}
	call.With(observability.F("order_id", o.ID))
	call.Span().SetAttributes(attribute.String("order.id", o.ID))

	if o.Status != domain.StatusProcessing {
		call.Status = "DUPLICATE"
		return &CallbackOutcome{OrderID: o.ID, Status: o.Status, Duplicate: true, Stock: o.Stock}, nil
	}

	// The rest of the work must not be abandoned half way because the provider hung up.
	ctx = context.WithoutCancel(ctx)

	if !cb.Succeeded {
		reason := cb.Description
		if reason == "" {
			reason = "payment declined (result code " + cb.ResultCode + ")"
		}
		if err := o.PaymentFailed(reason); err != nil {
			return nil, call.Fail("STATE_TRANSITION_FAILED", err)
		}
		return uc.claim(ctx, call, o)
	}

	if err := o.PaymentSucceeded(cb.Receipt); err != nil {
		return nil, call.Fail("STATE_TRANSITION_FAILED", err)
	}
	out, err := uc.claim(ctx, call, o)
	if err != nil || out.Duplicate {
		return out, err
	}

	// This caller owns the processing -> completed move, so it alone commits the stock.
	out.Stock = uc.commitStock(ctx, call, o)
	o.Stock = out.Stock
	_ = uc.publisher.Publish(ctx, call.Log, domain.NewOrderCompletedEvent(o))
	return out, nil
}

// claim persists the transition out of processing. Losing the race to a concurrent callback is a duplicate.
func (uc *HandleCallbackUseCase) claim(ctx context.Context, call *application.Call, o *domain.Order) (*CallbackOutcome, error) {
	err := uc.orders.Transition(ctx, o, domain.StatusProcessing)
	if errors.Is(err, domain.ErrStaleState) {
		call.Status = "DUPLICATE"
		current, gerr := uc.orders.Get(ctx, o.ID)
		if gerr != nil {
			return nil, call.Fail("ORDER_LOAD_FAILED", fmt.Errorf("%w: %w", ErrRepository, gerr))
		}
		return &CallbackOutcome{OrderID: current.ID, Status: current.Status, Duplicate: true, Stock: current.Stock}, nil
	}
	if err != nil {
		return nil, call.Fail("ORDER_UPDATE_FAILED", fmt.Errorf("%w: %w", ErrRepository, err))
	}
	if o.Status == domain.StatusFailed {
		_ = uc.publisher.Publish(ctx, call.Log, domain.NewOrderFailedEvent(o))
	}
	return &CallbackOutcome{OrderID: o.ID, Status: o.Status, Stock: o.Stock}, nil
}

// commitStock applies the order's lines and records the result. A failed commit leaves the order completed
// with stock uncommitted so an operator can retry it, unless the partial decrement could not be undone:
// then the stock state stays committing and retry refuses it. The payment is never rolled back.
func (uc *HandleCallbackUseCase) commitStock(ctx context.Context, call *application.Call, o *domain.Order) domain.StockState {
	return commit(ctx, uc.reconciler, uc.orders, call, o)
}

func commit(ctx context.Context, reconciler *stock.Reconciler, orders domain.Repository, call *application.Call, o *domain.Order) domain.StockState {
	if _, err := reconciler.Commit(ctx, o); err != nil {
		if errors.Is(err, stock.ErrRevertIncomplete) {
			// Part of the order is still out of stock; a retry would take it twice.
			call.Status = "STOCK_COMMIT_UNRECONCILED"
			call.Log.Error("stock_commit_needs_operator",
				observability.F("order_id", o.ID),
				observability.Err(err),
			)
			return domain.StockCommitting
		}
		call.Status = "STOCK_COMMIT_DEFERRED"
		call.Log.Error("stock_commit_failed",
			observability.F("order_id", o.ID),
			observability.Err(err),
		)
		if serr := orders.SetStockState(ctx, o.ID, domain.StockCommitting, domain.StockUncommitted); serr != nil {
			call.Log.Error("stock_state_persist_failed",
				observability.F("order_id", o.ID),
				observability.Err(serr),
			)
			return domain.StockCommitting
		}
		return domain.StockUncommitted
	}
	if err := orders.SetStockState(ctx, o.ID, domain.StockCommitting, domain.StockCommitted); err != nil {
		call.Status = "STOCK_STATE_PERSIST_FAILED"
		call.Log.Error("stock_state_persist_failed",
			observability.F("order_id", o.ID),
			observability.Err(err),
		)
		return domain.StockCommitting
	}
	return domain.StockCommitted
}
