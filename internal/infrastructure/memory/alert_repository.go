package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
)

type AlertRepository struct {
	mu     sync.RWMutex
	alerts map[string]*domain.StockAlert
}

func NewAlertRepository() *AlertRepository {
	return &AlertRepository{alerts: make(map[string]*domain.StockAlert)}
}

func (r *AlertRepository) Insert(ctx context.Context, alert *domain.StockAlert) error {
	_ = ctx
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("alert repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[alert.ID] = alert.Clone()
	return nil
}

func (r *AlertRepository) List(ctx context.Context, includeResolved bool) ([]*domain.StockAlert, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.StockAlert, 0, len(r.alerts))
	for _, a := range r.alerts {
		if a.Resolved && !includeResolved {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *AlertRepository) Resolve(ctx context.Context, id string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return domain.ErrAlertNotFound
	}
	a.Resolved = true
	return nil
}

func (r *AlertRepository) CountUnresolved(ctx context.Context) (int, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, a := range r.alerts {
		if !a.Resolved {
			n++
		}
	}
	return n, nil
}
