package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	refs   map[string]string // external payment reference -> order id
	items  *CatalogRepository
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*domain.Order),
		refs:   make(map[string]string),
	}
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.RLock()
	items := r.items
	r.mu.RUnlock()
	if items != nil {
		// held until the order is stored so a concurrent delete sees it
		items.mu.RLock()
		defer items.mu.RUnlock()
		for _, l := range order.Lines {
			if _, ok := items.items[l.ItemID]; !ok {
				return fmt.Errorf("order repository: line item %s: %w", l.ItemID, catalog.ErrNotFound)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrConflict
	}
	r.orders[order.ID] = order.Clone()
	r.indexRef(order)
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) FindByExternalReference(ctx context.Context, ref string) (*domain.Order, error) {
	_ = ctx
	if ref == "" {
		return nil, domain.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.refs[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) Transition(ctx context.Context, order *domain.Order, from domain.Status) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[order.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Status != from {
		return domain.ErrStaleState
	}

	next := current.Clone()
	next.Status = order.Status
	next.ExternalReference = order.Clone().ExternalReference
	next.PaymentReceipt = order.Clone().PaymentReceipt
	next.FailureReason = order.FailureReason
	next.Stock = order.Stock
	next.UpdatedAt = time.Now().UTC()
	r.orders[order.ID] = next
	r.indexRef(next)
	return nil
}

func (r *OrderRepository) SetStockState(ctx context.Context, id string, from, to domain.StockState) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Stock != from {
		return domain.ErrStaleState
	}
	current.Stock = to
	current.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	if order.ExternalReference != nil {
		delete(r.refs, *order.ExternalReference)
	}
	delete(r.orders, id)
	return nil
}

func (r *OrderRepository) ReferencesItem(ctx context.Context, itemID string) (bool, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.referencesLocked(itemID), nil
}

func (r *OrderRepository) references(itemID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.referencesLocked(itemID)
}

func (r *OrderRepository) referencesLocked(itemID string) bool {
	for _, o := range r.orders {
		for _, l := range o.Lines {
			if l.ItemID == itemID {
				return true
			}
		}
	}
	return false
}

func (r *OrderRepository) CountByStatus(ctx context.Context, statuses ...domain.Status) (int, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, o := range r.orders {
		if len(statuses) == 0 || slices.Contains(statuses, o.Status) {
			n++
		}
	}
	return n, nil
}

// indexRef must be called with the write lock held.
func (r *OrderRepository) indexRef(order *domain.Order) {
	if order.ExternalReference != nil && *order.ExternalReference != "" {
		r.refs[*order.ExternalReference] = order.ID
	}
}
