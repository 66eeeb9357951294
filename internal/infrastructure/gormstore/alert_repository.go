package gormstore

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"gorm.io/gorm"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Insert(ctx context.Context, alert *domain.StockAlert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("alert repository: id is required")
	}
	m := alertFromDomain(alert)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *AlertRepository) List(ctx context.Context, includeResolved bool) ([]*domain.StockAlert, error) {
	q := r.db.WithContext(ctx).Model(&alertModel{})
	if !includeResolved {
		q = q.Where("resolved = ?", false)
	}

	var rows []alertModel
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.StockAlert, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *AlertRepository) Resolve(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&alertModel{}).Where("id = ?", id).Update("resolved", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlertNotFound
	}
	return nil
}

func (r *AlertRepository) CountUnresolved(ctx context.Context) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&alertModel{}).Where("resolved = ?", false).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}
