package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/stock"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/fault"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/session"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Stats backs the operator dashboard.
type Stats struct {
	CatalogItems     int
	OpenOrders       int
	ProcessingOrders int
	UnresolvedAlerts int
}

// OrderAdmin covers order reads and the privileged ledger operations.
type OrderAdmin struct {
	orders     domain.Repository
	items      domcatalog.Repository
	alerts     domcatalog.AlertRepository
	reconciler *stock.Reconciler
	in         application.Instruments
}

func NewOrderAdmin(
	orders domain.Repository,
	items domcatalog.Repository,
	alerts domcatalog.AlertRepository,
	reconciler *stock.Reconciler,
	tel observability.Observability,
) *OrderAdmin {
	return &OrderAdmin{
		orders:     orders,
		items:      items,
		alerts:     alerts,
		reconciler: reconciler,
		in:         application.NewInstruments(tel, checkoutService),
	}
}

func (a *OrderAdmin) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := a.orders.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fault.NotFound(fault.CodeOrderNotFound, "order "+id+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return o, nil
}

// DeleteOrder removes a completed or failed order. In-flight orders are kept so their callback can land.
func (a *OrderAdmin) DeleteOrder(ctx context.Context, sess session.Session, id string) (err error) {
	ctx, call := a.in.Begin(ctx, "order.delete", "DeleteOrder", attribute.String("order.id", id))
	defer func() { call.Done(ctx, err) }()
	call.With(observability.F("order_id", id))

	if err := application.RequirePrivileged(sess); err != nil {
		return call.Fail("", err)
	}
	o, gerr := a.GetOrder(ctx, id)
	if gerr != nil {
		return call.Fail("", gerr)
	}
	if !o.Status.IsTerminal() {
		return call.Fail("", fault.Conflict(fault.CodeOrderNotTerminal, "order "+id+" is "+string(o.Status)))
	}
	if err := a.orders.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return call.Fail("", fault.NotFound(fault.CodeOrderNotFound, "order "+id+" not found"))
		}
		return call.Fail("REPO_DELETE_FAILED", fmt.Errorf("%w: %w", ErrRepository, err))
	}
	return nil
}

// RetryStockCommit re-applies the stock commit of a completed order whose earlier commit was rolled back.
func (a *OrderAdmin) RetryStockCommit(ctx context.Context, sess session.Session, id string) (_ domain.StockState, err error) {
	ctx, call := a.in.Begin(ctx, "order.retry_stock_commit", "RetryStockCommit", attribute.String("order.id", id))
	defer func() { call.Done(ctx, err) }()
	call.With(observability.F("order_id", id))

	if err := application.RequirePrivileged(sess); err != nil {
		return "", call.Fail("", err)
	}
	o, gerr := a.GetOrder(ctx, id)
	if gerr != nil {
		return "", call.Fail("", gerr)
	}
	if o.Status != domain.StatusCompleted {
		return "", call.Fail("", fault.Conflict(fault.CodeOrderState, "order "+id+" is not completed"))
	}
	err = a.orders.SetStockState(ctx, id, domain.StockUncommitted, domain.StockCommitting)
	if errors.Is(err, domain.ErrStaleState) {
		return "", call.Fail("", fault.Conflict(fault.CodeOrderState, "stock for order "+id+" is already "+string(o.Stock)))
	}
	if err != nil {
		return "", call.Fail("ORDER_UPDATE_FAILED", fmt.Errorf("%w: %w", ErrRepository, err))
	}

	state := commit(context.WithoutCancel(ctx), a.reconciler, a.orders, call, o)
	if state != domain.StockCommitted {
		return state, call.Fail("STOCK_COMMIT_FAILED", fault.New(fault.KindInvariantViolation, "STOCK_COMMIT_FAILED", "stock commit for order "+id+" did not complete"))
	}
	return state, nil
}

func (a *OrderAdmin) Stats(ctx context.Context, sess session.Session) (*Stats, error) {
	if err := application.RequirePrivileged(sess); err != nil {
		return nil, err
	}
	var s Stats
	var err error
	if s.CatalogItems, err = a.items.Count(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	if s.OpenOrders, err = a.orders.CountByStatus(ctx, domain.StatusPending, domain.StatusProcessing); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	if s.ProcessingOrders, err = a.orders.CountByStatus(ctx, domain.StatusProcessing); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	if s.UnresolvedAlerts, err = a.alerts.CountUnresolved(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return &s, nil
}
