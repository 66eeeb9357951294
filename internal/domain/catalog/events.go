package catalog

import "time"

// StockDiscrepancyEvent is emitted when a paid order drained more stock than was available.
type StockDiscrepancyEvent struct {
	AlertID    string
	ItemID     string
	OrderID    string
	Shortfall  int
	OccurredAt time.Time
}

func (StockDiscrepancyEvent) EventName() string { return "stock.discrepancy" }

func NewStockDiscrepancyEvent(a *StockAlert) StockDiscrepancyEvent {
	return StockDiscrepancyEvent{
		AlertID:    a.ID,
		ItemID:     a.ItemID,
		OrderID:    a.OrderID,
		Shortfall:  a.Shortfall,
		OccurredAt: time.Now().UTC(),
	}
}
