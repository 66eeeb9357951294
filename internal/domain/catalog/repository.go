package catalog

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository is the catalog store. Stock mutations must be atomic per item.
type Repository interface {
	Insert(ctx context.Context, item *Item) error
	Get(ctx context.Context, id string) (*Item, error)
	// List returns items ordered by name; an empty category returns all of them.
	List(ctx context.Context, category Category) ([]*Item, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error

	// DecrementStock removes qty units or fails with ErrInsufficientStock without changing anything.
	DecrementStock(ctx context.Context, id string, qty int) error
	// DecrementStockUpTo removes min(qty, stock) units and reports how many were removed.
	DecrementStockUpTo(ctx context.Context, id string, qty int) (int, error)
	RestoreStock(ctx context.Context, id string, qty int) error
	SetPrice(ctx context.Context, id string, price decimal.Decimal) error
}

type AlertRepository interface {
	Insert(ctx context.Context, alert *StockAlert) error
	List(ctx context.Context, includeResolved bool) ([]*StockAlert, error)
	Resolve(ctx context.Context, id string) error
	CountUnresolved(ctx context.Context) (int, error)
}
