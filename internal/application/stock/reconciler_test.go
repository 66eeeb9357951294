package stock_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/stock"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() string { return fmt.Sprintf("alert-%d", s.n.Add(1)) }

// flakyCatalog fails the decrement of one item id, and every restore when noRestore is set.
type flakyCatalog struct {
	*memory.CatalogRepository
	failOn    string
	noRestore bool
}

func (f flakyCatalog) RestoreStock(ctx context.Context, id string, qty int) error {
	if f.noRestore {
		return errors.New("connection reset")
	}
	return f.CatalogRepository.RestoreStock(ctx, id, qty)
}

func (f flakyCatalog) DecrementStockUpTo(ctx context.Context, id string, qty int) (int, error) {
	if id == f.failOn {
		return 0, errors.New("connection reset")
	}
	return f.CatalogRepository.DecrementStockUpTo(ctx, id, qty)
}

func seed(t *testing.T, repo *memory.CatalogRepository, id string, stock int) {
	t.Helper()
	item, err := catalog.NewItem(id, id, catalog.CategoryFood, decimal.RequireFromString("1.00"), stock)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), item))
}

func paidOrder(t *testing.T, lines map[string]int, ids ...string) *order.Order {
	t.Helper()
	var ls []order.Line
	for _, id := range ids {
		ls = append(ls, order.Line{ItemID: id, Name: id, Quantity: lines[id], UnitPrice: decimal.RequireFromString("1.00")})
	}
	o, err := order.New("o1", order.Customer{GuestName: "Kamau"}, ls)
	require.NoError(t, err)
	return o
}

func stockOf(t *testing.T, repo catalog.Repository, id string) int {
	t.Helper()
	item, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	return item.Stock
}

func TestCommitDecrementsEveryLine(t *testing.T) {
	items := memory.NewCatalogRepository()
	alerts := memory.NewAlertRepository()
	seed(t, items, "a", 5)
	seed(t, items, "b", 5)
	r := stock.NewReconciler(items, alerts, &seqIDs{}, nil, observability.Nop())

	res, err := r.Commit(context.Background(), paidOrder(t, map[string]int{"a": 2, "b": 1}, "a", "b"))
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)
	assert.Equal(t, 3, stockOf(t, items, "a"))
	assert.Equal(t, 4, stockOf(t, items, "b"))
}

func TestCommitClampsAndRecordsShortfall(t *testing.T) {
	items := memory.NewCatalogRepository()
	alerts := memory.NewAlertRepository()
	seed(t, items, "a", 1)
	r := stock.NewReconciler(items, alerts, &seqIDs{}, nil, observability.Nop())

	res, err := r.Commit(context.Background(), paidOrder(t, map[string]int{"a": 3}, "a"))
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, 2, res.Alerts[0].Shortfall)
	assert.Equal(t, 0, stockOf(t, items, "a"))

	stored, err := alerts.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "o1", stored[0].OrderID)
}

func TestCommitRevertsAppliedLinesOnStoreFailure(t *testing.T) {
	base := memory.NewCatalogRepository()
	seed(t, base, "a", 5)
	seed(t, base, "b", 5)
	items := flakyCatalog{CatalogRepository: base, failOn: "b"}
	r := stock.NewReconciler(items, memory.NewAlertRepository(), &seqIDs{}, nil, observability.Nop())

	_, err := r.Commit(context.Background(), paidOrder(t, map[string]int{"a": 2, "b": 1}, "a", "b"))
	require.ErrorIs(t, err, stock.ErrCommit)
	assert.Equal(t, 5, stockOf(t, base, "a"))
	assert.Equal(t, 5, stockOf(t, base, "b"))
	assert.NotErrorIs(t, err, stock.ErrRevertIncomplete)
}

func TestCommitReportsIncompleteRevert(t *testing.T) {
	base := memory.NewCatalogRepository()
	seed(t, base, "a", 5)
	seed(t, base, "b", 5)
	items := flakyCatalog{CatalogRepository: base, failOn: "b", noRestore: true}
	r := stock.NewReconciler(items, memory.NewAlertRepository(), &seqIDs{}, nil, observability.Nop())

	_, err := r.Commit(context.Background(), paidOrder(t, map[string]int{"a": 2, "b": 1}, "a", "b"))
	require.ErrorIs(t, err, stock.ErrRevertIncomplete)
	require.ErrorIs(t, err, stock.ErrCommit)
	assert.Equal(t, 3, stockOf(t, base, "a"))
	assert.Equal(t, 5, stockOf(t, base, "b"))
}
