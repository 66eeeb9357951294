package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) Insert(ctx context.Context, item *domain.Item) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("catalog repository: id is required")
	}
	m := itemFromDomain(item)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *CatalogRepository) Get(ctx context.Context, id string) (*domain.Item, error) {
	var m itemModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return m.toDomain(), nil
}

func (r *CatalogRepository) List(ctx context.Context, category domain.Category) ([]*domain.Item, error) {
	q := r.db.WithContext(ctx).Model(&itemModel{})
	if category != "" {
		q = q.Where("category = ?", string(category))
	}

	var rows []itemModel
	if err := q.Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Item, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *CatalogRepository) Count(ctx context.Context) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&itemModel{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *CatalogRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&itemModel{})
	if res.Error != nil {
		if isForeignKeyViolation(res.Error) {
			return domain.ErrReferenced
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DecrementStock is a single compare-and-decrement statement; the stock guard makes it safe without a lock.
func (r *CatalogRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	res := r.db.WithContext(ctx).Model(&itemModel{}).
		Where("id = ? AND stock >= ?", id, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if err := r.exists(ctx, id); err != nil {
			return err
		}
		return domain.ErrInsufficientStock
	}
	return nil
}

// DecrementStockUpTo locks the row, removes what is available and reports how much that was.
func (r *CatalogRepository) DecrementStockUpTo(ctx context.Context, id string, qty int) (int, error) {
	if qty <= 0 {
		return 0, domain.ErrInvalidQuantity
	}

	var applied int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m itemModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		applied = min(qty, m.Stock)
		if applied == 0 {
			return nil
		}
		res := tx.Model(&itemModel{}).
			Where("id = ? AND stock >= ?", id, applied).
			Updates(map[string]any{
				"stock":      gorm.Expr("stock - ?", applied),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrInsufficientStock
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

func (r *CatalogRepository) RestoreStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	return r.update(ctx, id, map[string]any{
		"stock":      gorm.Expr("stock + ?", qty),
		"updated_at": time.Now().UTC(),
	})
}

func (r *CatalogRepository) SetPrice(ctx context.Context, id string, price decimal.Decimal) error {
	if !domain.ValidPrice(price) {
		return domain.ErrInvalidPrice
	}
	return r.update(ctx, id, map[string]any{
		"unit_price": price,
		"updated_at": time.Now().UTC(),
	})
}

func (r *CatalogRepository) update(ctx context.Context, id string, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&itemModel{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *CatalogRepository) exists(ctx context.Context, id string) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&itemModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
