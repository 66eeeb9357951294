package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("catalog: item not found")
	ErrInvalidQuantity   = errors.New("catalog: quantity must be greater than zero")
	ErrInvalidPrice      = errors.New("catalog: price must be greater than zero with at most two decimals")
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
	ErrReferenced        = errors.New("catalog: item is referenced by order lines")
	ErrConflict          = errors.New("catalog: item already exists")
)

type Category string

const (
	CategoryFood     Category = "food"
	CategoryBeverage Category = "beverage"
)

func (c Category) Valid() bool {
	return c == CategoryFood || c == CategoryBeverage
}

// Item is a purchasable menu entry. Stock never goes below zero.
type Item struct {
	ID        string
	Name      string
	Category  Category
	UnitPrice decimal.Decimal
	Stock     int
	UpdatedAt time.Time
}

// ValidPrice reports whether price is positive and fits the two-decimal ledger without rounding.
func ValidPrice(price decimal.Decimal) bool {
	return price.IsPositive() && price.Equal(price.Round(2))
}

func NewItem(id, name string, category Category, price decimal.Decimal, stock int) (*Item, error) {
	if !ValidPrice(price) {
		return nil, ErrInvalidPrice
	}
	if stock < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Item{
		ID:        id,
		Name:      name,
		Category:  category,
		UnitPrice: price,
		Stock:     stock,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Covers reports whether the current stock can satisfy qty.
func (i *Item) Covers(qty int) bool {
	return qty > 0 && qty <= i.Stock
}

func (i *Item) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > i.Stock {
		return ErrInsufficientStock
	}
	i.Stock -= quantity
	i.touch()
	return nil
}

// DeductUpTo removes at most quantity units and returns how many were actually removed.
func (i *Item) DeductUpTo(quantity int) (int, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	applied := min(quantity, i.Stock)
	i.Stock -= applied
	i.touch()
	return applied, nil
}

func (i *Item) Restock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	i.Stock += quantity
	i.touch()
	return nil
}

func (i *Item) Reprice(price decimal.Decimal) error {
	if !ValidPrice(price) {
		return ErrInvalidPrice
	}
	i.UnitPrice = price
	i.touch()
	return nil
}

func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

func (i *Item) touch() {
	i.UpdatedAt = time.Now().UTC()
}
