package httppresentation

import (
	"strings"
	"time"

	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
)

// Money fields are fixed two-decimal strings.
type itemResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	UnitPrice string `json:"unit_price"`
	Stock     int    `json:"stock"`
}

func newItemResponse(i *catalog.Item) itemResponse {
	return itemResponse{
		ID:        i.ID,
		Name:      i.Name,
		Category:  string(i.Category),
		UnitPrice: i.UnitPrice.StringFixed(2),
		Stock:     i.Stock,
	}
}

type menuResponse struct {
	Food     []itemResponse `json:"food"`
	Beverage []itemResponse `json:"beverage"`
}

func newMenuResponse(items []*catalog.Item) menuResponse {
	out := menuResponse{Food: []itemResponse{}, Beverage: []itemResponse{}}
	for _, i := range items {
		switch i.Category {
		case catalog.CategoryBeverage:
			out.Beverage = append(out.Beverage, newItemResponse(i))
		default:
			out.Food = append(out.Food, newItemResponse(i))
		}
	}
	return out
}

func catalogCategory(v string) catalog.Category {
	return catalog.Category(strings.ToLower(strings.TrimSpace(v)))
}

type cartLineResponse struct {
	ItemID    string `json:"item_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
	Available bool   `json:"available"`
}

type cartResponse struct {
	Lines []cartLineResponse `json:"lines"`
	Total string             `json:"total"`
	Count int                `json:"count"`
}

func newCartResponse(v *appcart.View) cartResponse {
	out := cartResponse{Lines: make([]cartLineResponse, 0, len(v.Lines)), Total: v.Total.StringFixed(2), Count: v.Count}
	for _, l := range v.Lines {
		out.Lines = append(out.Lines, cartLineResponse{
			ItemID:    l.ItemID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal.StringFixed(2),
			Available: l.Available,
		})
	}
	return out
}

type orderLineResponse struct {
	ItemID    string `json:"item_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type orderResponse struct {
	ID                string              `json:"id"`
	Status            string              `json:"status"`
	Total             string              `json:"total"`
	GuestName         string              `json:"guest_name,omitempty"`
	Phone             string              `json:"phone"`
	ExternalReference *string             `json:"external_reference,omitempty"`
	PaymentReceipt    *string             `json:"payment_receipt,omitempty"`
	FailureReason     string              `json:"failure_reason,omitempty"`
	Stock             string              `json:"stock"`
	Lines             []orderLineResponse `json:"lines"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func newOrderResponse(o *order.Order) orderResponse {
	out := orderResponse{
		ID:                o.ID,
		Status:            string(o.Status),
		Total:             o.Total.StringFixed(2),
		GuestName:         o.Customer.GuestName,
		Phone:             o.Customer.Phone,
		ExternalReference: o.ExternalReference,
		PaymentReceipt:    o.PaymentReceipt,
		FailureReason:     o.FailureReason,
		Stock:             string(o.Stock),
		Lines:             make([]orderLineResponse, 0, len(o.Lines)),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	for _, l := range o.Lines {
		out.Lines = append(out.Lines, orderLineResponse{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Subtotal:  l.Subtotal().StringFixed(2),
		})
	}
	return out
}

type alertResponse struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	OrderID   string    `json:"order_id"`
	Requested int       `json:"requested"`
	Applied   int       `json:"applied"`
	Shortfall int       `json:"shortfall"`
	Message   string    `json:"message"`
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
}

func newAlertResponse(a *catalog.StockAlert) alertResponse {
	return alertResponse{
		ID:        a.ID,
		ItemID:    a.ItemID,
		OrderID:   a.OrderID,
		Requested: a.Requested,
		Applied:   a.Applied,
		Shortfall: a.Shortfall,
		Message:   a.Message,
		Resolved:  a.Resolved,
		CreatedAt: a.CreatedAt,
	}
}

type statsResponse struct {
	CatalogItems     int `json:"catalog_items"`
	OpenOrders       int `json:"open_orders"`
	ProcessingOrders int `json:"processing_orders"`
	UnresolvedAlerts int `json:"unresolved_alerts"`
}

func newStatsResponse(s *checkout.Stats) statsResponse {
	return statsResponse{
		CatalogItems:     s.CatalogItems,
		OpenOrders:       s.OpenOrders,
		ProcessingOrders: s.ProcessingOrders,
		UnresolvedAlerts: s.UnresolvedAlerts,
	}
}
