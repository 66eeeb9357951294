package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
)

const reconcilerService = "stock-reconciler"

var ErrCommit = errors.New("stock: commit failed")

// ErrRevertIncomplete means a failed commit could not put back every line it had applied,
// so the catalog holds a partial decrement. It wraps ErrCommit.
var ErrRevertIncomplete = fmt.Errorf("%w: revert incomplete", ErrCommit)

// Applied is one line that was taken out of stock. Only Quantity units were removed.
type Applied struct {
	ItemID   string
	Quantity int
}

type CommitResult struct {
	Applied []Applied
	Alerts  []*domcatalog.StockAlert
}

// Reconciler moves paid order lines out of the catalog.
type Reconciler struct {
	items     domcatalog.Repository
	alerts    domcatalog.AlertRepository
	ids       application.IDGenerator
	publisher *application.Publisher
	in        application.Instruments

	discrepancies observability.Counter // stock_discrepancies_total{item_id}
}

func NewReconciler(
	items domcatalog.Repository,
	alerts domcatalog.AlertRepository,
	ids application.IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Reconciler {
	in := application.NewInstruments(tel, reconcilerService)
	return &Reconciler{
		items:         items,
		alerts:        alerts,
		ids:           ids,
		publisher:     application.NewPublisher(publisher, in.Tel()),
		in:            in,
		discrepancies: in.Tel().Metrics().Counter(observability.MStockDiscrepancies),
	}
}

// Commit decrements stock for every line of o. A line that asks for more than is left takes what
// remains and leaves a StockAlert with the shortfall; stock never goes negative. If the store fails
// part way, the lines already applied are put back and an error is returned; when that put-back
// fails too, the error is ErrRevertIncomplete and the order must not be committed again.
func (r *Reconciler) Commit(ctx context.Context, o *domorder.Order) (_ *CommitResult, err error) {
	ctx, call := r.in.Begin(ctx, "stock.commit", "CommitStock", attribute.String("order.id", o.ID))
	defer func() { call.Done(ctx, err) }()
	call.With(observability.F("order_id", o.ID), observability.F("lines", len(o.Lines)))

	res := &CommitResult{}
	for _, l := range o.Lines {
		applied, derr := r.items.DecrementStockUpTo(ctx, l.ItemID, l.Quantity)
		if derr != nil && !errors.Is(derr, domcatalog.ErrNotFound) {
			if rerr := r.Revert(ctx, res.Applied); rerr != nil {
				call.Log.Error("stock_revert_failed",
					observability.F("order_id", o.ID),
					observability.F("applied", len(res.Applied)),
					observability.Err(rerr),
				)
				return nil, call.Fail("REVERT_FAILED", fmt.Errorf("%w: item %s: %w (revert: %w)", ErrRevertIncomplete, l.ItemID, derr, rerr))
			}
			return nil, call.Fail("DECREMENT_FAILED", fmt.Errorf("%w: item %s: %w", ErrCommit, l.ItemID, derr))
		}
		if applied > 0 {
			res.Applied = append(res.Applied, Applied{ItemID: l.ItemID, Quantity: applied})
		}
		if applied < l.Quantity {
			res.Alerts = append(res.Alerts, r.recordShortfall(ctx, call.Log, o.ID, l.ItemID, l.Quantity, applied))
		}
	}
	if len(res.Alerts) > 0 {
		call.Status = "COMMITTED_WITH_DISCREPANCY"
		call.With(observability.F("alerts", len(res.Alerts)))
	}
	return res, nil
}

// Revert puts back exactly what Commit applied. Callers pass the tracked slice so nothing is restored twice.
func (r *Reconciler) Revert(ctx context.Context, applied []Applied) error {
	var errs []error
	for _, a := range applied {
		if err := r.items.RestoreStock(ctx, a.ItemID, a.Quantity); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", a.ItemID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) recordShortfall(ctx context.Context, logger observability.Logger, orderID, itemID string, requested, applied int) *domcatalog.StockAlert {
	alert := domcatalog.NewStockAlert(r.ids.NewID(), itemID, orderID, requested, applied)
	r.discrepancies.Add(1, observability.L("item_id", itemID))

	logger = logctx.FromOr(ctx, logger)
	if err := r.alerts.Insert(ctx, alert); err != nil {
		logger.Error("stock_alert_persist_failed",
			observability.F("alert_id", alert.ID),
			observability.Err(err),
		)
	}
	logger.Warn("stock_discrepancy_recorded",
		observability.F("alert_id", alert.ID),
		observability.F("order_id", orderID),
		observability.F("item_id", itemID),
		observability.F("requested", requested),
		observability.F("applied", applied),
		observability.F("shortfall", alert.Shortfall),
	)
	_ = r.publisher.Publish(ctx, logger, domcatalog.NewStockDiscrepancyEvent(alert))
	return alert
}
