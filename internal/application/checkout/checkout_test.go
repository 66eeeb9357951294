package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/stock"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/fault"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/session"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() string { return fmt.Sprintf("id-%d", s.n.Add(1)) }

type fakeGateway struct {
	err   error
	block bool
	calls atomic.Int32
}

func (g *fakeGateway) Initiate(ctx context.Context, req payment.InitiateRequest) (payment.Initiation, error) {
	g.calls.Add(1)
	if g.block {
		<-ctx.Done()
		return payment.Initiation{}, ctx.Err()
	}
	if g.err != nil {
		return payment.Initiation{}, g.err
	}
	return payment.Initiation{ExternalReference: "ref-" + req.Reference}, nil
}

type stubParser struct{}

func (stubParser) ParseCallback(raw []byte) (payment.CallbackResult, error) {
	if len(raw) == 0 {
		return payment.CallbackResult{}, payment.ErrMalformedCallback
	}
	return payment.CallbackResult{ExternalReference: string(raw), Succeeded: true, Receipt: "RAW1", ResultCode: "0"}, nil
}

// breakableCatalog fails stock decrements while broken is set, or only for failOn.
// restoreBroken makes RestoreStock fail as well.
type breakableCatalog struct {
	*memory.CatalogRepository
	broken        atomic.Bool
	restoreBroken atomic.Bool
	failOn        atomic.Value
}

func (b *breakableCatalog) DecrementStockUpTo(ctx context.Context, id string, qty int) (int, error) {
	if b.broken.Load() || b.failOn.Load() == id {
		return 0, errors.New("database is locked")
	}
	return b.CatalogRepository.DecrementStockUpTo(ctx, id, qty)
}

func (b *breakableCatalog) RestoreStock(ctx context.Context, id string, qty int) error {
	if b.restoreBroken.Load() {
		return errors.New("connection reset")
	}
	return b.CatalogRepository.RestoreStock(ctx, id, qty)
}

type fixture struct {
	items    *breakableCatalog
	orders   *memory.OrderRepository
	alerts   *memory.AlertRepository
	carts    *appcart.Store
	cartSvc  *appcart.Service
	gateway  *fakeGateway
	initiate *checkout.InitiateCheckoutUseCase
	callback *checkout.HandleCallbackUseCase
	admin    *checkout.OrderAdmin
}

func newFixture(t *testing.T, opts checkout.Options) *fixture {
	t.Helper()
	return newObservedFixture(t, opts, observability.Nop())
}

func newObservedFixture(t *testing.T, opts checkout.Options, tel observability.Observability) *fixture {
	t.Helper()
	f := &fixture{
		items:   &breakableCatalog{CatalogRepository: memory.NewCatalogRepository()},
		orders:  memory.NewOrderRepository(),
		alerts:  memory.NewAlertRepository(),
		carts:   appcart.NewStore(memory.NewSessionStore()),
		gateway: &fakeGateway{},
	}
	locker := memory.NewKeyedLocker()
	ids := &seqIDs{}
	reconciler := stock.NewReconciler(f.items, f.alerts, ids, nil, tel)
	f.cartSvc = appcart.NewService(f.items, f.carts, locker, tel)
	f.initiate = checkout.NewInitiateCheckoutUseCase(f.items, f.orders, f.carts, locker, f.gateway, ids, nil, tel, opts)
	f.callback = checkout.NewHandleCallbackUseCase(f.orders, reconciler, stubParser{}, nil, tel)
	f.admin = checkout.NewOrderAdmin(f.orders, f.items, f.alerts, reconciler, tel)

	f.seed(t, "samosa", "3.50", 10)
	f.seed(t, "chai", "1.00", 10)
	return f
}

func (f *fixture) seed(t *testing.T, id, price string, stock int) {
	t.Helper()
	item, err := catalog.NewItem(id, id, catalog.CategoryFood, decimal.RequireFromString(price), stock)
	require.NoError(t, err)
	require.NoError(t, f.items.Insert(context.Background(), item))
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	item, err := f.items.Get(context.Background(), id)
	require.NoError(t, err)
	return item.Stock
}

func (f *fixture) orderCount(t *testing.T) int {
	t.Helper()
	n, err := f.orders.CountByStatus(context.Background())
	require.NoError(t, err)
	return n
}

var (
	shopper  = session.Session{ID: "sess-1"}
	operator = session.Session{ID: "sess-op", UserID: "admin", Privileged: true}
	guest    = checkout.CustomerInfo{Name: "Njeri", Phone: "254712345678"}
)

func (f *fixture) fillCart(t *testing.T, sess session.Session) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.cartSvc.AddItem(ctx, sess, "samosa", 2))
	require.NoError(t, f.cartSvc.AddItem(ctx, sess, "chai", 1))
}

func (f *fixture) checkout(t *testing.T) *checkout.InitiateCheckoutResult {
	t.Helper()
	f.fillCart(t, shopper)
	res, err := f.initiate.Execute(context.Background(), checkout.InitiateCheckoutInput{Session: shopper, Customer: guest})
	require.NoError(t, err)
	return res
}

func TestCheckoutCreatesProcessingOrder(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	res := f.checkout(t)

	assert.Equal(t, order.StatusProcessing, res.Status)
	assert.Equal(t, "8.00", res.Total)
	assert.Equal(t, "ref-"+res.OrderID, res.ExternalReference)

	o, err := f.admin.GetOrder(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Len(t, o.Lines, 2)
	assert.True(t, order.SumLines(o.Lines).Equal(o.Total))
	assert.Equal(t, "Njeri", o.Customer.GuestName)
	assert.Equal(t, order.StockUncommitted, o.Stock)

	n, _ := f.cartSvc.Count(context.Background(), shopper)
	assert.Zero(t, n, "cart is cleared once payment is initiated")
	assert.Equal(t, 10, f.stock(t, "samosa"), "stock is untouched until payment is confirmed")
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	_, err := f.initiate.Execute(context.Background(), checkout.InitiateCheckoutInput{Session: shopper, Customer: guest})

	require.ErrorIs(t, err, fault.ErrValidation)
	assert.Equal(t, fault.CodeEmptyCart, fault.CodeOf(err))
	assert.Zero(t, f.orderCount(t))
	assert.Zero(t, f.gateway.calls.Load())
}

func TestCheckoutReportsEveryRun(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reg := prometheus.NewRegistry()
	f := newObservedFixture(t, checkout.Options{}, infraobs.NewWithPrometheus("", reg, nil, zaplogger.Wrap(zap.New(core))))

	_, err := f.initiate.Execute(context.Background(), checkout.InitiateCheckoutInput{Session: shopper, Customer: guest})
	require.Error(t, err)
	res := f.checkout(t)

	var runs []map[string]any
	for _, e := range logs.FilterMessage("use_case_done").All() {
		if fields := e.ContextMap(); fields["use_case"] == "checkout.initiate" {
			runs = append(runs, fields)
		}
	}
	require.Len(t, runs, 2)
	assert.Equal(t, fault.CodeEmptyCart, runs[0]["status"])
	assert.Equal(t, "error", runs[0]["outcome"])
	assert.Equal(t, "OK", runs[1]["status"])
	assert.Equal(t, res.OrderID, runs[1]["order_id"])

	outcomes := map[string]float64{}
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "usecase_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["use_case"] == "checkout.initiate" {
				outcomes[labels["outcome"]] += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"error": 1, "success": 1}, outcomes)
}

func TestCheckoutInvalidCustomerInfo(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	f.fillCart(t, shopper)
	ctx := context.Background()

	for _, info := range []checkout.CustomerInfo{
		{Name: "Njeri", Phone: "0712345678"},
		{Name: "Njeri", Phone: "25471234567"},
		{Name: "Njeri", Phone: ""},
		{Name: "", Phone: "254712345678"},
	} {
		_, err := f.initiate.Execute(ctx, checkout.InitiateCheckoutInput{Session: shopper, Customer: info})
		require.ErrorIs(t, err, fault.ErrValidation, "info %+v", info)
		assert.Equal(t, fault.CodeInvalidCustomerInfo, fault.CodeOf(err))
	}
	assert.Zero(t, f.orderCount(t))

	signedIn := session.Session{ID: shopper.ID, UserID: "user-7"}
	res, err := f.initiate.Execute(ctx, checkout.InitiateCheckoutInput{Session: signedIn, Customer: checkout.CustomerInfo{Phone: "+254 712 345 678"}})
	require.NoError(t, err)
	o, _ := f.admin.GetOrder(ctx, res.OrderID)
	assert.Equal(t, "user-7", o.Customer.UserID)
	assert.Equal(t, "254712345678", o.Customer.Phone)
}

func TestCheckoutStockConflictCreatesNoOrder(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	ctx := context.Background()
	f.fillCart(t, shopper)
	require.NoError(t, f.items.DecrementStock(ctx, "samosa", 9))

	_, err := f.initiate.Execute(ctx, checkout.InitiateCheckoutInput{Session: shopper, Customer: guest})
	require.ErrorIs(t, err, fault.ErrConflict)
	assert.Equal(t, fault.CodeStockConflict, fault.CodeOf(err))
	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "samosa", fe.ItemID)

	assert.Zero(t, f.orderCount(t))
	n, _ := f.cartSvc.Count(ctx, shopper)
	assert.Equal(t, 3, n)
}

func TestCheckoutGatewayFailureFailsOrderAndKeepsCart(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	f.gateway.err = errors.New("401 invalid access token")
	f.fillCart(t, shopper)
	ctx := context.Background()

	_, err := f.initiate.Execute(ctx, checkout.InitiateCheckoutInput{Session: shopper, Customer: guest})
	require.ErrorIs(t, err, fault.ErrExternalService)
	assert.Equal(t, fault.CodePaymentInitiationFailed, fault.CodeOf(err))

	n, _ := f.orders.CountByStatus(ctx, order.StatusFailed)
	assert.Equal(t, 1, n)
	count, _ := f.cartSvc.Count(ctx, shopper)
	assert.Equal(t, 3, count, "cart survives so the customer can retry")
	assert.Equal(t, 10, f.stock(t, "samosa"))
}

func TestCheckoutGatewayTimeoutIsBounded(t *testing.T) {
	f := newFixture(t, checkout.Options{PaymentTimeout: 20 * time.Millisecond})
	f.gateway.block = true
	f.fillCart(t, shopper)

	start := time.Now()
	_, err := f.initiate.Execute(context.Background(), checkout.InitiateCheckoutInput{Session: shopper, Customer: guest})
	require.ErrorIs(t, err, fault.ErrExternalService)
	assert.Less(t, time.Since(start), 2*time.Second)

	n, _ := f.orders.CountByStatus(context.Background(), order.StatusFailed)
	assert.Equal(t, 1, n)
}

func TestConcurrentCheckoutsOnOneSessionCreateOneOrder(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	f.fillCart(t, shopper)

	var ok, empty atomic.Int32
	var g errgroup.Group
	for range 5 {
		g.Go(func() error {
			_, err := f.initiate.Execute(context.Background(), checkout.InitiateCheckoutInput{Session: shopper, Customer: guest})
			switch {
			case err == nil:
				ok.Add(1)
			case fault.CodeOf(err) == fault.CodeEmptyCart:
				empty.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 4, empty.Load())
	assert.Equal(t, 1, f.orderCount(t))
}

func TestCallbackSuccessCommitsStockOnce(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	res := f.checkout(t)
	ctx := context.Background()
	cb := payment.CallbackResult{ExternalReference: res.ExternalReference, Succeeded: true, Receipt: "QKX123", ResultCode: "0"}

	out, err := f.callback.Execute(ctx, cb)
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.Equal(t, order.StatusCompleted, out.Status)
	assert.Equal(t, order.StockCommitted, out.Stock)

	again, err := f.callback.Execute(ctx, cb)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	assert.Equal(t, 8, f.stock(t, "samosa"))
	assert.Equal(t, 9, f.stock(t, "chai"))

	o, _ := f.admin.GetOrder(ctx, res.OrderID)
	require.NotNil(t, o.PaymentReceipt)
	assert.Equal(t, "QKX123", *o.PaymentReceipt)
}

func TestConcurrentDuplicateCallbacksCommitOnce(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	res := f.checkout(t)
	cb := payment.CallbackResult{ExternalReference: res.ExternalReference, Succeeded: true, Receipt: "R"}

	var owners atomic.Int32
	var g errgroup.Group
	for range 12 {
		g.Go(func() error {
			out, err := f.callback.Execute(context.Background(), cb)
			if err != nil {
				return err
			}
			if !out.Duplicate {
				owners.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, owners.Load())
	assert.Equal(t, 8, f.stock(t, "samosa"))
	assert.Equal(t, 9, f.stock(t, "chai"))
}

func TestCallbackFailureLeavesStockAlone(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	res := f.checkout(t)
	ctx := context.Background()

	out, err := f.callback.Execute(ctx, payment.CallbackResult{ExternalReference: res.ExternalReference, ResultCode: "1032", Description: "Request cancelled by user"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, out.Status)
	assert.Equal(t, 10, f.stock(t, "samosa"))

	late, err := f.callback.Execute(ctx, payment.CallbackResult{ExternalReference: res.ExternalReference, Succeeded: true})
	require.NoError(t, err)
	assert.True(t, late.Duplicate)
	assert.Equal(t, order.StatusFailed, late.Status)
	assert.Equal(t, 10, f.stock(t, "samosa"))

	o, _ := f.admin.GetOrder(ctx, res.OrderID)
	assert.Equal(t, "Request cancelled by user", o.FailureReason)
}

func TestCallbackUnknownReference(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	res := f.checkout(t)

	_, err := f.callback.Execute(context.Background(), payment.CallbackResult{ExternalReference: "ws_CO_missing", Succeeded: true})
	require.ErrorIs(t, err, fault.ErrNotFound)
	assert.Equal(t, fault.CodeUnknownReference, fault.CodeOf(err))

	o, _ := f.admin.GetOrder(context.Background(), res.OrderID)
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Equal(t, 10, f.stock(t, "samosa"))
}

func TestCallbackRaw(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	res := f.checkout(t)

	out, err := f.callback.ExecuteRaw(context.Background(), []byte(res.ExternalReference))
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, out.Status)

	_, err = f.callback.ExecuteRaw(context.Background(), nil)
	require.ErrorIs(t, err, fault.ErrValidation)
	assert.Equal(t, fault.CodeMalformedCallback, fault.CodeOf(err))
}

func TestPriceSnapshotSurvivesRepricing(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	res := f.checkout(t)
	ctx := context.Background()

	require.NoError(t, f.items.SetPrice(ctx, "samosa", decimal.RequireFromString("9.99")))

	o, err := f.admin.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.50").Equal(o.Lines[0].UnitPrice))
	assert.True(t, decimal.RequireFromString("8.00").Equal(o.Total))
}

func TestShortfallCompletesOrderAndRaisesAlert(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	res := f.checkout(t)
	ctx := context.Background()
	require.NoError(t, f.items.DecrementStock(ctx, "samosa", 9))

	out, err := f.callback.Execute(ctx, payment.CallbackResult{ExternalReference: res.ExternalReference, Succeeded: true})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, out.Status)
	assert.Equal(t, 0, f.stock(t, "samosa"))

	alerts, err := f.alerts.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 1, alerts[0].Shortfall)
	assert.Equal(t, res.OrderID, alerts[0].OrderID)

	stats, err := f.admin.Stats(ctx, operator)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UnresolvedAlerts)
}

func TestFailedStockCommitCanBeRetried(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	res := f.checkout(t)
	ctx := context.Background()

	f.items.broken.Store(true)
	out, err := f.callback.Execute(ctx, payment.CallbackResult{ExternalReference: res.ExternalReference, Succeeded: true})
	require.NoError(t, err, "payment truth is kept even when stock cannot be written")
	assert.Equal(t, order.StatusCompleted, out.Status)
	assert.Equal(t, order.StockUncommitted, out.Stock)
	assert.Equal(t, 10, f.stock(t, "samosa"))

	_, err = f.admin.RetryStockCommit(ctx, shopper, res.OrderID)
	require.ErrorIs(t, err, fault.ErrForbidden)

	f.items.broken.Store(false)
	state, err := f.admin.RetryStockCommit(ctx, operator, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StockCommitted, state)
	assert.Equal(t, 8, f.stock(t, "samosa"))

	_, err = f.admin.RetryStockCommit(ctx, operator, res.OrderID)
	require.ErrorIs(t, err, fault.ErrConflict)
	assert.Equal(t, 8, f.stock(t, "samosa"))
}

func TestUnrevertedPartialCommitIsNeverRetried(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	res := f.checkout(t)
	ctx := context.Background()

	// samosa is applied first, chai fails, and samosa cannot be put back
	f.items.failOn.Store("chai")
	f.items.restoreBroken.Store(true)
	out, err := f.callback.Execute(ctx, payment.CallbackResult{ExternalReference: res.ExternalReference, Succeeded: true})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, out.Status)
	assert.Equal(t, order.StockCommitting, out.Stock)
	assert.Equal(t, 8, f.stock(t, "samosa"))

	f.items.failOn.Store("")
	f.items.restoreBroken.Store(false)
	_, err = f.admin.RetryStockCommit(ctx, operator, res.OrderID)
	require.ErrorIs(t, err, fault.ErrConflict)
	assert.Equal(t, 8, f.stock(t, "samosa"), "samosa must not be taken twice")
	assert.Equal(t, 10, f.stock(t, "chai"))

	o, err := f.admin.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StockCommitting, o.Stock)
}

func TestDeleteOrderOnlyWhenTerminal(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	res := f.checkout(t)
	ctx := context.Background()

	err := f.admin.DeleteOrder(ctx, operator, res.OrderID)
	require.ErrorIs(t, err, fault.ErrConflict)
	assert.Equal(t, fault.CodeOrderNotTerminal, fault.CodeOf(err))

	_, err = f.callback.Execute(ctx, payment.CallbackResult{ExternalReference: res.ExternalReference})
	require.NoError(t, err)

	require.ErrorIs(t, f.admin.DeleteOrder(ctx, shopper, res.OrderID), fault.ErrForbidden)
	require.NoError(t, f.admin.DeleteOrder(ctx, operator, res.OrderID))
	_, err = f.admin.GetOrder(ctx, res.OrderID)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestStats(t *testing.T) {
	f := newFixture(t, checkout.Options{})
	f.checkout(t)

	_, err := f.admin.Stats(context.Background(), shopper)
	require.ErrorIs(t, err, fault.ErrForbidden)

	stats, err := f.admin.Stats(context.Background(), operator)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CatalogItems)
	assert.Equal(t, 1, stats.OpenOrders)
	assert.Equal(t, 1, stats.ProcessingOrders)
	assert.Zero(t, stats.UnresolvedAlerts)
}
