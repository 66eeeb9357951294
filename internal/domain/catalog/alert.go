package catalog

import (
	"errors"
	"fmt"
	"time"
)

var ErrAlertNotFound = errors.New("catalog: stock alert not found")

// StockAlert records a commit that could not remove the full paid quantity.
type StockAlert struct {
	ID        string
	ItemID    string
	OrderID   string
	Requested int
	Applied   int
	Shortfall int
	Message   string
	Resolved  bool
	CreatedAt time.Time
}

func NewStockAlert(id, itemID, orderID string, requested, applied int) *StockAlert {
	shortfall := requested - applied
	return &StockAlert{
		ID:        id,
		ItemID:    itemID,
		OrderID:   orderID,
		Requested: requested,
		Applied:   applied,
		Shortfall: shortfall,
		Message: fmt.Sprintf("order %s paid for %d of item %s but only %d were in stock (short by %d)",
			orderID, requested, itemID, applied, shortfall),
		CreatedAt: time.Now().UTC(),
	}
}

func (a *StockAlert) Clone() *StockAlert {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
