package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// CatalogRepository keeps items in a map. Every stock mutation runs under the write lock,
// which makes check-and-decrement atomic per item.
type CatalogRepository struct {
	mu     sync.RWMutex
	items  map[string]*domain.Item
	orders *OrderRepository
}

// Link makes items and orders behave like tables joined by a restricting foreign key:
// an item named by an order line cannot be deleted, and an order cannot name a missing item.
// Locks are always taken catalog first, then orders.
func Link(items *CatalogRepository, orders *OrderRepository) {
	items.mu.Lock()
	items.orders = orders
	items.mu.Unlock()

	orders.mu.Lock()
	orders.items = items
	orders.mu.Unlock()
}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		items: make(map[string]*domain.Item),
	}
}

func (r *CatalogRepository) Insert(ctx context.Context, item *domain.Item) error {
	_ = ctx
	if item == nil || item.ID == "" {
		return fmt.Errorf("catalog repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.ID]; exists {
		return domain.ErrConflict
	}
	r.items[item.ID] = item.Clone()
	return nil
}

func (r *CatalogRepository) Get(ctx context.Context, id string) (*domain.Item, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item.Clone(), nil
}

func (r *CatalogRepository) List(ctx context.Context, category domain.Category) ([]*domain.Item, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Item, 0, len(r.items))
	for _, item := range r.items {
		if category != "" && item.Category != category {
			continue
		}
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *CatalogRepository) Count(ctx context.Context) (int, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items), nil
}

func (r *CatalogRepository) Delete(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrNotFound
	}
	if r.orders != nil && r.orders.references(id) {
		return domain.ErrReferenced
	}
	delete(r.items, id)
	return nil
}

func (r *CatalogRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	return r.mutate(ctx, id, func(item *domain.Item) error { return item.Deduct(qty) })
}

func (r *CatalogRepository) DecrementStockUpTo(ctx context.Context, id string, qty int) (int, error) {
	var applied int
	err := r.mutate(ctx, id, func(item *domain.Item) error {
		n, err := item.DeductUpTo(qty)
		applied = n
		return err
	})
	return applied, err
}

func (r *CatalogRepository) RestoreStock(ctx context.Context, id string, qty int) error {
	return r.mutate(ctx, id, func(item *domain.Item) error { return item.Restock(qty) })
}

func (r *CatalogRepository) SetPrice(ctx context.Context, id string, price decimal.Decimal) error {
	return r.mutate(ctx, id, func(item *domain.Item) error { return item.Reprice(price) })
}

// mutate applies fn to a copy and stores it only when fn succeeds.
func (r *CatalogRepository) mutate(ctx context.Context, id string, fn func(*domain.Item) error) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return err
	}
	r.items[id] = next
	return nil
}
