package order

import "context"

type Repository interface {
	// Insert stores the order together with its lines.
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	FindByExternalReference(ctx context.Context, ref string) (*Order, error)
	// Transition persists the order's status fields only if the stored status still equals from.
	// It returns ErrStaleState when another writer got there first.
	Transition(ctx context.Context, order *Order, from Status) error
	// SetStockState moves the stock marker from one state to another, with the same ErrStaleState guard.
	SetStockState(ctx context.Context, id string, from, to StockState) error
	Delete(ctx context.Context, id string) error
	ReferencesItem(ctx context.Context, itemID string) (bool, error)
	CountByStatus(ctx context.Context, statuses ...Status) (int, error)
}
