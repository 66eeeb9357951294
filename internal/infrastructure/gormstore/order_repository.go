package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	m := orderFromDomain(order)
	// order and lines land in one transaction
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("order repository: line item: %w", catalog.ErrNotFound)
		}
		return err
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *OrderRepository) FindByExternalReference(ctx context.Context, ref string) (*domain.Order, error) {
	if ref == "" {
		return nil, domain.ErrNotFound
	}
	return r.first(ctx, "external_reference = ?", ref)
}

func (r *OrderRepository) first(ctx context.Context, query string, arg any) (*domain.Order, error) {
	var m orderModel
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where(query, arg).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return m.toDomain(), nil
}

func (r *OrderRepository) Transition(ctx context.Context, order *domain.Order, from domain.Status) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	res := r.db.WithContext(ctx).Model(&orderModel{}).
		Where("id = ? AND status = ?", order.ID, string(from)).
		Updates(map[string]any{
			"status":             string(order.Status),
			"external_reference": order.ExternalReference,
			"payment_receipt":    order.PaymentReceipt,
			"failure_reason":     order.FailureReason,
			"stock_state":        string(order.Stock),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.staleOrMissing(ctx, order.ID)
	}
	return nil
}

func (r *OrderRepository) SetStockState(ctx context.Context, id string, from, to domain.StockState) error {
	res := r.db.WithContext(ctx).Model(&orderModel{}).
		Where("id = ? AND stock_state = ?", id, string(from)).
		Updates(map[string]any{
			"stock_state": string(to),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.staleOrMissing(ctx, id)
	}
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&orderLineModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&orderModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *OrderRepository) ReferencesItem(ctx context.Context, itemID string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&orderLineModel{}).Where("item_id = ?", itemID).Limit(1).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *OrderRepository) CountByStatus(ctx context.Context, statuses ...domain.Status) (int, error) {
	q := r.db.WithContext(ctx).Model(&orderModel{})
	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, s := range statuses {
			names = append(names, string(s))
		}
		q = q.Where("status IN ?", names)
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *OrderRepository) staleOrMissing(ctx context.Context, id string) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&orderModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrStaleState
}
