package memory_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func seedItem(t *testing.T, repo *memory.CatalogRepository, id string, stock int) {
	t.Helper()
	item, err := catalog.NewItem(id, id, catalog.CategoryFood, decimal.RequireFromString("2.00"), stock)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), item))
}

func TestCatalogDecrementIsAtomicUnderContention(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCatalogRepository()
	seedItem(t, repo, "pilau", 10)

	var ok, short atomic.Int32
	var g errgroup.Group
	for range 25 {
		g.Go(func() error {
			err := repo.DecrementStock(ctx, "pilau", 1)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, catalog.ErrInsufficientStock):
				short.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 10, ok.Load())
	assert.EqualValues(t, 15, short.Load())
	item, err := repo.Get(ctx, "pilau")
	require.NoError(t, err)
	assert.Equal(t, 0, item.Stock)
}

func TestCatalogDecrementUpToClamps(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCatalogRepository()
	seedItem(t, repo, "mandazi", 2)

	applied, err := repo.DecrementStockUpTo(ctx, "mandazi", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	item, _ := repo.Get(ctx, "mandazi")
	assert.Equal(t, 0, item.Stock)
}

func TestCatalogGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCatalogRepository()
	seedItem(t, repo, "chapati", 3)

	item, _ := repo.Get(ctx, "chapati")
	item.Stock = 100

	again, _ := repo.Get(ctx, "chapati")
	assert.Equal(t, 3, again.Stock)
}

func TestCatalogListFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCatalogRepository()
	seedItem(t, repo, "ugali", 1)
	seedItem(t, repo, "beans", 1)
	soda, _ := catalog.NewItem("soda", "soda", catalog.CategoryBeverage, decimal.RequireFromString("1"), 1)
	require.NoError(t, repo.Insert(ctx, soda))

	food, err := repo.List(ctx, catalog.CategoryFood)
	require.NoError(t, err)
	require.Len(t, food, 2)
	assert.Equal(t, "beans", food[0].ID)
	assert.Equal(t, "ugali", food[1].ID)

	all, _ := repo.List(ctx, "")
	assert.Len(t, all, 3)
}

func TestCatalogMissingItem(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCatalogRepository()
	_, err := repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.ErrorIs(t, repo.DecrementStock(ctx, "nope", 1), catalog.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "nope"), catalog.ErrNotFound)
}

func teaOrder(t *testing.T, id string) *order.Order {
	t.Helper()
	o, err := order.New(id, order.Customer{GuestName: "Achieng"}, []order.Line{
		{ItemID: "tea", Name: "Tea", Quantity: 1, UnitPrice: decimal.RequireFromString("2.00")},
	})
	require.NoError(t, err)
	return o
}

func TestLinkedCatalogRefusesToDeleteOrderedItem(t *testing.T) {
	ctx := context.Background()
	items, orders := memory.NewCatalogRepository(), memory.NewOrderRepository()
	memory.Link(items, orders)
	seedItem(t, items, "tea", 5)
	seedItem(t, items, "kahawa", 5)

	require.NoError(t, orders.Insert(ctx, teaOrder(t, "o-1")))
	assert.ErrorIs(t, items.Delete(ctx, "tea"), catalog.ErrReferenced)
	require.NoError(t, items.Delete(ctx, "kahawa"))

	require.NoError(t, orders.Delete(ctx, "o-1"))
	require.NoError(t, items.Delete(ctx, "tea"))
	assert.ErrorIs(t, orders.Insert(ctx, teaOrder(t, "o-2")), catalog.ErrNotFound)
}

func TestLinkedDeleteAndOrderNeverInterleave(t *testing.T) {
	ctx := context.Background()
	for round := range 50 {
		items, orders := memory.NewCatalogRepository(), memory.NewOrderRepository()
		memory.Link(items, orders)
		seedItem(t, items, "tea", 5)
		o := teaOrder(t, "o-1")

		var g errgroup.Group
		g.Go(func() error {
			err := items.Delete(ctx, "tea")
			if err != nil && !errors.Is(err, catalog.ErrReferenced) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			err := orders.Insert(ctx, o)
			if err != nil && !errors.Is(err, catalog.ErrNotFound) {
				return err
			}
			return nil
		})
		require.NoError(t, g.Wait())

		_, itemErr := items.Get(ctx, "tea")
		used, err := orders.ReferencesItem(ctx, "tea")
		require.NoError(t, err)
		if used {
			assert.NoError(t, itemErr, "round %d: order kept for a deleted item", round)
		}
	}
}
